package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is returned for definitions missing required fields.
var ErrInvalidDefinition = errors.New("invalid tool definition")

// Definition describes one capability of one service.
type Definition struct {
	Name        string         `yaml:"name" json:"name"`
	Server      string         `yaml:"server" json:"server"`
	Category    string         `yaml:"category" json:"category,omitempty"`
	Description string         `yaml:"description" json:"description"`
	InputSchema map[string]any `yaml:"inputSchema" json:"inputSchema,omitempty"`
	Example     string         `yaml:"example" json:"example,omitempty"`
	Notes       string         `yaml:"notes" json:"notes,omitempty"`
}

// Validate checks the required fields.
func (d Definition) Validate() error {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Server == "" {
		missing = append(missing, "server")
	}
	if d.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidDefinition, strings.Join(missing, ", "))
	}
	return nil
}

// ID returns the definition's "server:name" identifier.
func (d Definition) ID() string {
	return toolID(d.Server, d.Name)
}

func toolID(server, name string) string {
	return server + ":" + name
}

// file is the on-disk shape: a single definition or a tools list.
type file struct {
	Definition `yaml:",inline"`
	Tools      []Definition `yaml:"tools"`
}

// Parse decodes the definitions in one YAML document stream.
func Parse(data []byte) ([]Definition, error) {
	var out []Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var f file
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(f.Tools) > 0 {
			out = append(out, f.Tools...)
			continue
		}
		out = append(out, f.Definition)
	}
	return out, nil
}

// LoadDir reads every .yaml and .yml file beneath root. Files that fail to
// parse and definitions that fail validation are logged and skipped.
func LoadDir(fsys afero.Fs, root string, logger *zap.Logger) ([]Definition, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var defs []Definition
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
		default:
			return nil
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		parsed, err := Parse(data)
		if err != nil {
			logger.Warn("skipping unparsable tool definition file",
				zap.String("path", path), zap.Error(err))
			return nil
		}
		for _, d := range parsed {
			if err := d.Validate(); err != nil {
				logger.Warn("skipping tool definition",
					zap.String("path", path), zap.Error(err))
				continue
			}
			defs = append(defs, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", root, err)
	}
	return defs, nil
}
