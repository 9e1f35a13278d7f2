// Package stepper implements the workflow stepper: an ordered sequence
// of stages with validation-gated forward navigation, blocked backward
// navigation past irreversible stages, auto-advance with a stale-
// completion guard, and cooperative cancellation. It replaces ambient
// client state with an explicit context object threaded through stages.
package stepper

import "sync"

// Context carries validated inputs and stage outputs across a flow. It
// is ephemeral: Cancel discards it. Safe for concurrent use because
// stage completion handlers may write while the host reads.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext creates an empty flow context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores a value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

// Get returns the value stored under key and whether it exists.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the string stored under key, or "" when absent or
// not a string.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// outputKey names the slot a stage's output is stored under.
func outputKey(stageID string) string {
	return "output:" + stageID
}

// Output returns the output recorded for a completed stage.
func (c *Context) Output(stageID string) (any, bool) {
	return c.Get(outputKey(stageID))
}

// setOutput records a stage's output.
func (c *Context) setOutput(stageID string, out any) {
	c.Set(outputKey(stageID), out)
}
