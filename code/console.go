package code

import "sync"

// Console levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelDebug = "debug"
)

// Console captures a script's output as an ordered sequence of entries.
//
// A plain Log with one argument stores the argument itself; with any other
// number of arguments it stores them as a slice. Leveled output is stored as
// a LevelRecord.
//
// Contract:
// - Concurrency: safe for concurrent use; entries keep call order.
// - Ownership: arguments are stored as given; Entries returns a copy.
type Console struct {
	mu      sync.Mutex
	entries []any
}

// NewConsole creates an empty console.
func NewConsole() *Console {
	return &Console{}
}

// Log appends a plain entry.
func (c *Console) Log(args ...any) {
	var entry any
	if len(args) == 1 {
		entry = args[0]
	} else {
		entry = append([]any{}, args...)
	}
	c.append(entry)
}

// Leveled appends an entry tagged with level.
func (c *Console) Leveled(level string, args ...any) {
	c.append(LevelRecord{Level: level, Data: append([]any{}, args...)})
}

// Entries returns a snapshot of the captured entries.
func (c *Console) Entries() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any{}, c.entries...)
}

// Len returns the number of captured entries.
func (c *Console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Console) append(entry any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}
