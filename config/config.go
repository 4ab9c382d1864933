package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/elb-pr/claudikins-tool-executor/backend"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// FileNames are searched in the working directory, in order, when no
// explicit path is given. HomeFileName is tried last in the home directory.
var (
	FileNames    = []string{"tool-executor.config.json", ".tool-executorrc.json"}
	HomeFileName = ".tool-executor.config.json"
)

// AllowedCommands are the launchers a server may use.
var AllowedCommands = []string{"npx", "uvx", "node", "python"}

// reserved names collide with globals bound into every script scope.
var reserved = map[string]bool{
	"console": true, "workspace": true, "require": true, "process": true,
	"module": true, "exports": true, "globalThis": true,
	"setTimeout": true, "clearTimeout": true, "setInterval": true,
	"clearInterval": true, "setImmediate": true, "clearImmediate": true,
	"JSON": true, "Promise": true, "Object": true, "Array": true,
	"Error": true, "Math": true, "undefined": true, "eval": true,
	"await": true, "async": true, "function": true, "return": true,
	"const": true, "let": true, "var": true, "new": true, "this": true,
	"class": true, "import": true, "export": true, "delete": true,
}

var (
	identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	envRef     = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// Server is one entry of the servers array.
type Server struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName,omitempty"`
	Command     string            `json:"command"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env,omitempty"`
}

// File is the on-disk shape. Unknown top-level keys are rejected; unknown
// keys inside a server entry are ignored.
type File struct {
	Schema  string            `json:"$schema,omitempty"`
	Servers []json.RawMessage `json:"servers"`
}

// Config is the resolved set of service descriptors.
type Config struct {
	// Path is the file the servers came from, or empty for the defaults.
	Path string

	Servers []backend.Descriptor
}

// Defaults reports whether the built-in servers are in use.
func (c Config) Defaults() bool {
	return c.Path == ""
}

// LoadOptions controls discovery and expansion.
type LoadOptions struct {
	// Path is an explicit config file. When set it must exist.
	Path string

	// WorkDir is searched for FileNames.
	// Default: "."
	WorkDir string

	// HomeDir is searched for HomeFileName. Empty skips the home lookup.
	HomeDir string

	// Getenv resolves ${VAR} references.
	// Default: os.Getenv
	Getenv func(string) string

	// Logger is optional.
	Logger *zap.Logger
}

func (o *LoadOptions) applyDefaults() {
	if o.WorkDir == "" {
		o.WorkDir = "."
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Load discovers a config file and parses it. When no file is found the
// built-in defaults are returned. A file that exists but does not parse or
// validate is an error.
func Load(fsys afero.Fs, opts LoadOptions) (Config, error) {
	opts.applyDefaults()

	path, err := Discover(fsys, opts)
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		opts.Logger.Info("no config file found, using default servers",
			zap.Int("servers", len(defaultServers)))
		return Config{Servers: Defaults(opts.Getenv)}, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	servers, err := Parse(data, opts.Getenv)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	opts.Logger.Info("loaded config", zap.String("path", path), zap.Int("servers", len(servers)))
	return Config{Path: path, Servers: servers}, nil
}

// Discover returns the config file to load, or "" when none exists.
func Discover(fsys afero.Fs, opts LoadOptions) (string, error) {
	if opts.Path != "" {
		ok, err := afero.Exists(fsys, opts.Path)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: config file %s does not exist", ErrInvalidConfig, opts.Path)
		}
		return opts.Path, nil
	}

	candidates := make([]string, 0, len(FileNames)+1)
	for _, name := range FileNames {
		candidates = append(candidates, filepath.Join(opts.WorkDir, name))
	}
	if opts.HomeDir != "" {
		candidates = append(candidates, filepath.Join(opts.HomeDir, HomeFileName))
	}
	for _, p := range candidates {
		ok, err := afero.Exists(fsys, p)
		if err != nil {
			return "", err
		}
		if ok {
			return p, nil
		}
	}
	return "", nil
}

// Parse decodes a JSON-with-comments config, expands ${VAR} references in
// every server string and validates the result.
func Parse(data []byte, getenv func(string) string) ([]backend.Descriptor, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	servers := make([]Server, len(f.Servers))
	for i, raw := range f.Servers {
		if err := json.Unmarshal(raw, &servers[i]); err != nil {
			return nil, fmt.Errorf("%w: servers[%d]: %v", ErrInvalidConfig, i, err)
		}
		servers[i] = servers[i].expand(getenv)
	}
	return resolve(servers)
}

func resolve(servers []Server) ([]backend.Descriptor, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("%w: servers: at least one server is required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(servers))
	out := make([]backend.Descriptor, 0, len(servers))
	for i, s := range servers {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("%w: servers[%d]: %v", ErrInvalidConfig, i, err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: servers[%d].name: duplicate %q", ErrInvalidConfig, i, s.Name)
		}
		seen[s.Name] = true
		out = append(out, s.descriptor())
	}
	return out, nil
}

func (s Server) validate() error {
	switch {
	case s.Name == "":
		return errors.New("name is required")
	case !identifier.MatchString(s.Name):
		return fmt.Errorf("name %q is not a valid identifier", s.Name)
	case reserved[s.Name]:
		return fmt.Errorf("name %q is reserved", s.Name)
	}
	for _, c := range AllowedCommands {
		if s.Command == c {
			return nil
		}
	}
	return fmt.Errorf("command %q must be one of %s", s.Command, strings.Join(AllowedCommands, ", "))
}

// expand returns s with ${VAR} references resolved in every string value.
// Env keys are left as written.
func (s Server) expand(getenv func(string) string) Server {
	out := Server{
		Name:        Expand(s.Name, getenv),
		DisplayName: Expand(s.DisplayName, getenv),
		Command:     Expand(s.Command, getenv),
	}
	if len(s.Args) > 0 {
		out.Args = make([]string, len(s.Args))
		for i, a := range s.Args {
			out.Args[i] = Expand(a, getenv)
		}
	}
	if len(s.Env) > 0 {
		out.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			out.Env[k] = Expand(v, getenv)
		}
	}
	return out
}

func (s Server) descriptor() backend.Descriptor {
	d := backend.Descriptor{
		Name:        s.Name,
		DisplayName: s.DisplayName,
		Command:     s.Command,
		Args:        s.Args,
		Env:         s.Env,
	}
	if d.DisplayName == "" {
		d.DisplayName = DisplayName(s.Name)
	}
	return d
}

// Expand replaces ${VAR} references with getenv(VAR). Unset variables
// expand to the empty string; bare $VAR is left alone.
func Expand(s string, getenv func(string) string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return getenv(m[2 : len(m)-1])
	})
}

// DisplayName derives a label from a camelCase name:
// "sequentialThinking" becomes "Sequential Thinking".
func DisplayName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			b.WriteByte(' ')
		}
		if r == '_' || r == '$' {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return cases.Title(language.English, cases.NoLower).String(strings.Join(strings.Fields(b.String()), " "))
}
