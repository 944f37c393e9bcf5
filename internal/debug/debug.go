// Package debug provides opt-in, namespace-scoped tracing.
//
// Nothing is printed until a namespace is enabled with Init or EnableAll.
// Namespaces are ':'-delimited; enabling "runner" also enables
// "runner:task" and "runner:task:hooks". A nil *Tracer is valid and never
// prints.
package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

// DefaultDepth bounds object dumps unless SetDepth is called.
const DefaultDepth = 2

var (
	nsColor    = color.New(color.FgCyan, color.Bold)
	labelColor = color.New(color.FgYellow)
	valueColor = color.New(color.FgHiBlack)
)

// Tracer holds the enablement state for one process.
type Tracer struct {
	mu      sync.RWMutex
	enabled map[string]bool
	all     bool
	depth   int
	out     io.Writer
}

// New creates a Tracer writing to w, or to stderr when w is nil.
func New(w io.Writer) *Tracer {
	if w == nil {
		w = os.Stderr
	}
	return &Tracer{
		enabled: make(map[string]bool),
		depth:   DefaultDepth,
		out:     w,
	}
}

// Init enables a comma-separated list of namespaces. "*", "all" and "true"
// enable everything. Calls accumulate.
func (t *Tracer) Init(namespaces string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ns := range strings.Split(namespaces, ",") {
		ns = strings.TrimSpace(ns)
		switch strings.ToLower(ns) {
		case "":
			continue
		case "*", "all", "true":
			t.all = true
		default:
			t.enabled[ns] = true
		}
	}
}

// EnableAll turns debug-everything on or off.
func (t *Tracer) EnableAll(on bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.all = on
	t.mu.Unlock()
}

// SetDepth sets the maximum nesting shown by Obj. Values below 1 reset it to
// DefaultDepth.
func (t *Tracer) SetDepth(depth int) {
	if t == nil {
		return
	}
	if depth < 1 {
		depth = DefaultDepth
	}
	t.mu.Lock()
	t.depth = depth
	t.mu.Unlock()
}

// Depth returns the configured dump depth.
func (t *Tracer) Depth() int {
	if t == nil {
		return DefaultDepth
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.depth
}

// CheckEnabled reports whether ns, or any of its ':'-delimited ancestors, was
// explicitly enabled. It ignores debug-all.
func (t *Tracer) CheckEnabled(ns string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.enabled[ns] {
		return true
	}
	prefix := ""
	for _, segment := range strings.Split(ns, ":") {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += ":" + segment
		}
		if t.enabled[prefix] {
			return true
		}
	}
	return false
}

// Enabled reports whether output for ns would be printed.
func (t *Tracer) Enabled(ns string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	all := t.all
	t.mu.RUnlock()
	return all || t.CheckEnabled(ns)
}

// Msg prints a message under ns.
func (t *Tracer) Msg(ns, msg string) {
	if !t.Enabled(ns) {
		return
	}
	t.write(fmt.Sprintf("%s %s\n", nsColor.Sprintf("[%s]", ns), msg))
}

// Str prints a labelled string under ns.
func (t *Tracer) Str(ns, label, s string) {
	if !t.Enabled(ns) {
		return
	}
	t.write(fmt.Sprintf("%s %s %s\n", nsColor.Sprintf("[%s]", ns), labelColor.Sprint(label+":"), s))
}

// Obj prints a depth-bounded dump of v under ns.
func (t *Tracer) Obj(ns, label string, v any) {
	if !t.Enabled(ns) {
		return
	}
	cfg := spew.ConfigState{
		Indent:                  "  ",
		MaxDepth:                t.Depth(),
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	t.write(fmt.Sprintf("%s %s\n%s", nsColor.Sprintf("[%s]", ns), labelColor.Sprint(label+":"), valueColor.Sprint(cfg.Sdump(v))))
}

func (t *Tracer) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	io.WriteString(t.out, s)
}
