package scheduler

import (
	"fmt"
	"regexp"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/aristath/toolbelt/internal/toolerr"
)

// SharedContext is the key/value store tasks use to hand data to each other
// during a run, plus the audit list of registered command strings.
//
// All methods are safe for concurrent use. An overlay created with Overlay
// reads through to its parent but keeps its own writes until merged.
type SharedContext struct {
	mu       sync.RWMutex
	values   *orderedmap.OrderedMap[string, any]
	commands []string
	parent   *SharedContext
}

// NewSharedContext creates an empty context.
func NewSharedContext() *SharedContext {
	return &SharedContext{values: orderedmap.New[string, any]()}
}

// Set stores value under key.
func (c *SharedContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values.Set(key, value)
}

// Get returns the value stored under key, consulting the parent when c is
// an overlay.
func (c *SharedContext) Get(key string) (any, bool) {
	c.mu.RLock()
	v, ok := c.values.Get(key)
	parent := c.parent
	c.mu.RUnlock()

	if ok || parent == nil {
		return v, ok
	}
	return parent.Get(key)
}

// GetString returns the value under key formatted as a string.
func (c *SharedContext) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	if s, isStr := v.(string); isStr {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Keys returns the keys written to c itself, in first-write order.
func (c *SharedContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, c.values.Len())
	for pair := c.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Values returns a copy of the values written to c itself.
func (c *SharedContext) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, c.values.Len())
	for pair := c.values.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// AppendCommand records a command string in the audit list.
func (c *SharedContext) AppendCommand(command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, command)
}

// CommandStrings returns the audit list in registration order. It reflects
// the intended sequence, not what actually ran.
func (c *SharedContext) CommandStrings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.commands...)
}

// Overlay returns an isolated child context for one task of a concurrent
// stage.
func (c *SharedContext) Overlay() *SharedContext {
	child := NewSharedContext()
	child.parent = c
	return child
}

// Merge copies the values of overlay into c in overlay's write order.
// Merging overlays in registration order makes the last-registered writer
// win on overlapping keys.
func (c *SharedContext) Merge(overlay *SharedContext) {
	if overlay == nil || overlay == c {
		return
	}
	overlay.mu.RLock()
	pairs := make([]*orderedmap.Pair[string, any], 0, overlay.values.Len())
	for pair := overlay.values.Oldest(); pair != nil; pair = pair.Next() {
		pairs = append(pairs, pair)
	}
	overlay.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pair := range pairs {
		c.values.Set(pair.Key, pair.Value)
	}
}

var placeholder = regexp.MustCompile(`\$\{ctx\.([A-Za-z0-9_.\-]+)\}`)

// Expand replaces every ${ctx.key} in s with the stored value. A reference
// to a missing key is a validation error.
func (c *SharedContext) Expand(s string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := c.GetString(key)
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", toolerr.NewValidationError(
			fmt.Sprintf("Command references undefined context key %q.", missing[0]),
			"scheduler:SharedContext:Expand",
			toolerr.ValidationDetail{Argument: "command", Expected: "defined context keys", Received: s},
		)
	}
	return out, nil
}
