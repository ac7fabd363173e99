package deptree

import (
	"context"
	"time"
)

// stamp is the newest modification time seen in a dependency closure.
// unknown is set when some file in the closure could not be read.
type stamp struct {
	modTime time.Time
	unknown bool
}

func (s stamp) merge(other stamp) stamp {
	if other.modTime.After(s.modTime) {
		s.modTime = other.modTime
	}
	s.unknown = s.unknown || other.unknown
	return s
}

// walk computes the newest mtime of every file's closure with Tarjan's
// strongly connected components. All members of a component share one
// closure, so cycles terminate and the answer does not depend on the order
// in which files are visited.
type walk struct {
	ctx context.Context
	a   *Analyzer

	next    int
	index   map[string]int
	low     map[string]int
	onStack map[string]bool
	stack   []string

	partial map[string]stamp
	newest  map[string]stamp

	errors []*DependencyError
}

func newWalk(ctx context.Context, a *Analyzer) *walk {
	return &walk{
		ctx:     ctx,
		a:       a,
		index:   make(map[string]int),
		low:     make(map[string]int),
		onStack: make(map[string]bool),
		partial: make(map[string]stamp),
		newest:  make(map[string]stamp),
	}
}

func (w *walk) visit(file string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	w.index[file] = w.next
	w.low[file] = w.next
	w.next++
	w.stack = append(w.stack, file)
	w.onStack[file] = true

	info, err := w.a.analyze(w.ctx, file)
	if err != nil {
		return err
	}
	w.errors = append(w.errors, info.errs...)

	acc := stamp{modTime: info.modTime, unknown: info.modTime.IsZero()}
	for _, dep := range info.deps {
		if _, seen := w.index[dep]; !seen {
			if err := w.visit(dep); err != nil {
				return err
			}
			w.low[file] = min(w.low[file], w.low[dep])
		} else if w.onStack[dep] {
			w.low[file] = min(w.low[file], w.index[dep])
		}
		if done, ok := w.newest[dep]; ok {
			acc = acc.merge(done)
		}
	}
	w.partial[file] = acc

	if w.low[file] != w.index[file] {
		return nil
	}

	// file is the root of a component: pop it and share the closure stamp.
	var members []string
	for {
		top := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		w.onStack[top] = false
		members = append(members, top)
		if top == file {
			break
		}
	}
	combined := stamp{}
	for _, member := range members {
		combined = combined.merge(w.partial[member])
	}
	for _, member := range members {
		w.newest[member] = combined
		delete(w.partial, member)
	}
	return nil
}
