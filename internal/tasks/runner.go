// Package tasks runs named tasks with prerequisites. Each task runs at most
// once per Runner; the first failure stops the run.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/morozRed/kiln/internal/fileutil"
)

// Body is the work of a task. It may call Runner.Run for further tasks.
type Body func(ctx context.Context) error

// Task is a named unit of work.
type Task struct {
	Name          string
	Description   string
	Prerequisites []string
	// Inputs, when set, makes the task incremental: the body is skipped while
	// every returned file is unchanged since the last successful run.
	Inputs func() ([]string, error)
	Body   Body
}

// Result is the outcome of one task.
type Result struct {
	Name     string
	State    State
	Duration time.Duration
	UpToDate bool
	Err      error
}

// InputCache tracks the inputs of incremental tasks.
type InputCache interface {
	FindNewer(files []string, purpose string) ([]string, error)
	MarkAllProcessed(files []string, purpose string, at time.Time)
}

// Runner holds task definitions and the state of one run.
type Runner struct {
	// Cache is consulted for tasks with Inputs. Nil disables incremental skipping.
	Cache InputCache
	// OnStart is called before a task body runs.
	OnStart func(task Task)

	mu      sync.Mutex
	tasks   map[string]*Task
	states  map[string]State
	errs    map[string]error
	results []Result
	failure error
}

func NewRunner() *Runner {
	return &Runner{
		tasks:  make(map[string]*Task),
		states: make(map[string]State),
		errs:   make(map[string]error),
	}
}

// Define adds or replaces a task.
func (r *Runner) Define(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := task
	r.tasks[task.Name] = &t
}

// DefineTask defines a task without prerequisites or description.
func (r *Runner) DefineTask(name string, body Body) {
	r.Define(Task{Name: name, Body: body})
}

// Tasks returns every definition sorted by name.
func (r *Runner) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Results returns task outcomes in completion order.
func (r *Runner) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

// Run runs names in order along with their prerequisites. Unknown names and
// prerequisite cycles are reported before any task starts.
func (r *Runner) Run(ctx context.Context, names ...string) error {
	if err := r.validate(names); err != nil {
		return err
	}
	for _, name := range names {
		if err := r.runOne(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, name string) error {
	r.mu.Lock()
	if r.failure != nil {
		err := r.failure
		r.mu.Unlock()
		return err
	}
	switch r.states[name] {
	case Succeeded:
		r.mu.Unlock()
		return nil
	case Failed:
		err := r.errs[name]
		r.mu.Unlock()
		return err
	case Running:
		r.mu.Unlock()
		return &GraphError{Kind: ErrCycle, Msg: fmt.Sprintf("%s is already running", name)}
	}
	task := *r.tasks[name]
	if err := transition(r.states, name, Pending, Running); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	start := time.Now()
	upToDate, err := r.execute(ctx, task)
	return r.finish(name, start, upToDate, err)
}

func (r *Runner) execute(ctx context.Context, task Task) (bool, error) {
	for _, prereq := range task.Prerequisites {
		if err := r.runOne(ctx, prereq); err != nil {
			return false, err
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var inputs []string
	if task.Inputs != nil && r.Cache != nil {
		files, err := task.Inputs()
		if err != nil {
			return false, err
		}
		changed, err := r.Cache.FindNewer(files, InputPurpose(task.Name))
		if err != nil {
			return false, err
		}
		if len(changed) == 0 {
			return true, nil
		}
		inputs = files
	}

	if r.OnStart != nil {
		r.OnStart(task)
	}
	started := time.Now()
	if task.Body != nil {
		if err := task.Body(ctx); err != nil {
			return false, err
		}
	}
	if inputs != nil {
		r.Cache.MarkAllProcessed(inputs, InputPurpose(task.Name), started)
	}
	return false, nil
}

func (r *Runner) finish(name string, start time.Time, upToDate bool, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := Result{Name: name, Duration: time.Since(start), UpToDate: upToDate}
	if err == nil {
		if terr := transition(r.states, name, Running, Succeeded); terr != nil {
			return terr
		}
		result.State = Succeeded
		r.results = append(r.results, result)
		return nil
	}

	// Failures from nested tasks keep the innermost task's name.
	var failure *Failure
	var graphErr *GraphError
	if !errors.As(err, &failure) && !errors.As(err, &graphErr) && !errors.Is(err, context.Canceled) {
		err = &Failure{Task: name, Err: err}
	}
	if terr := transition(r.states, name, Running, Failed); terr != nil {
		return terr
	}
	result.State = Failed
	result.Err = err
	r.errs[name] = err
	r.results = append(r.results, result)
	if r.failure == nil {
		r.failure = err
	}
	return err
}

// validate checks that every name and reachable prerequisite exists and that
// prerequisites are acyclic.
func (r *Runner) validate(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	missing := make([]string, 0)
	const (
		visiting = 1
		done     = 2
	)
	marks := make(map[string]int)
	var cycle []string

	var visit func(name string, path []string)
	visit = func(name string, path []string) {
		task, ok := r.tasks[name]
		if !ok {
			missing = append(missing, name)
			return
		}
		switch marks[name] {
		case visiting:
			if cycle == nil {
				cycle = append(append([]string(nil), path...), name)
			}
			return
		case done:
			return
		}
		marks[name] = visiting
		for _, prereq := range task.Prerequisites {
			visit(prereq, append(path, name))
		}
		marks[name] = done
	}
	for _, name := range names {
		visit(name, nil)
	}

	if len(missing) > 0 {
		return &GraphError{Kind: ErrTaskNotFound, Msg: strings.Join(fileutil.DedupeStrings(missing), ", ")}
	}
	if cycle != nil {
		return &GraphError{Kind: ErrCycle, Msg: strings.Join(cycle, " -> ")}
	}
	return nil
}

var purposeUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// InputPurpose is the change-cache purpose for an incremental task's inputs.
func InputPurpose(name string) string {
	return "task-" + purposeUnsafe.ReplaceAllString(strings.ToLower(name), "_")
}
