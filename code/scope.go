package code

import (
	"sync"
	"time"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

// Workspace is the storage exposed to scripts.
// *workspace.Workspace implements it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: paths escaping the root must fail, never be clamped.
type Workspace interface {
	Read(p string) (string, error)
	Write(p, content string) error
	Append(p, content string) error
	Delete(p string) error
	ReadJSON(p string) (any, error)
	WriteJSON(p string, v any) error
	List(p string) ([]string, error)
	Glob(pattern string) ([]string, error)
	Mkdir(p string) error
	Exists(p string) (bool, error)
	Stat(p string) (workspace.Info, error)
	CleanupResults(maxAge time.Duration) (int, error)
}

// Scope is everything one script run may touch: a console, one proxy per
// configured service, and the workspace. A Scope is built per run and
// never shared.
type Scope struct {
	console   *Console
	proxies   []*Proxy
	workspace Workspace

	mu    sync.Mutex
	calls []audit.Entry
}

// NewScope builds a fresh scope from cfg. cfg.Connector and cfg.Workspace
// must be set.
func NewScope(cfg Config) *Scope {
	cfg.applyDefaults()
	s := &Scope{
		console:   NewConsole(),
		workspace: cfg.Workspace,
	}
	for _, name := range cfg.Connector.Names() {
		s.proxies = append(s.proxies, newProxy(name, &cfg, s.record))
	}
	return s
}

// Console returns the run's output sink.
func (s *Scope) Console() *Console {
	return s.console
}

// Proxies returns one proxy per configured service, sorted by service name.
func (s *Scope) Proxies() []*Proxy {
	return append([]*Proxy(nil), s.proxies...)
}

// Workspace returns the run's storage helper.
func (s *Scope) Workspace() Workspace {
	return s.workspace
}

// Calls returns the capability invocations made through this scope.
func (s *Scope) Calls() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.calls...)
}

func (s *Scope) record(e audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, e)
}
