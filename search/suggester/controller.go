package suggester

import (
	"context"
	"sync"
	"time"

	"github.com/noelzubin/notes_switcher/search"
	"go.uber.org/zap"
)

// State of the suggestion controller.
type State int

const (
	StateIdle State = iota
	StateQuerying
	StateShowing
	StateEmpty
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateShowing:
		return "showing"
	case StateEmpty:
		return "empty"
	case StateCommitting:
		return "committing"
	}
	return "unknown"
}

// Update is a snapshot published to listeners after every state change.
type Update struct {
	State    State
	Input    string
	Filter   search.Filter
	Results  []search.Result
	Selected int
}

// Controller turns keystrokes into debounced queries and commits selections.
type Controller struct {
	mu        sync.Mutex
	source    QuerySource
	committer Committer
	delay     time.Duration
	logger    *zap.Logger
	listeners []func(Update)

	state      State
	input      string
	filter     search.Filter
	results    []search.Result
	selected   int
	generation uint64 // Bumped by every input change, stale queries compare against it
	timer      *time.Timer
}

// NewController returns an idle controller. A delay of zero queries on every
// keystroke synchronously.
func NewController(source QuerySource, committer Committer, delay time.Duration, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{source: source, committer: committer, delay: delay, logger: logger}
}

// OnUpdate registers a listener. Listeners run on the goroutine that caused
// the change, never while the controller lock is held.
func (c *Controller) OnUpdate(fn func(Update)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SetInput handles a keystroke that left text in the search bar.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	gen := c.invalidate()
	if text == "" {
		c.reset()
		u := c.snapshot()
		c.mu.Unlock()
		c.publish(u)
		return
	}
	c.state = StateQuerying
	if c.delay <= 0 {
		c.mu.Unlock()
		c.run(gen)
		return
	}
	c.timer = time.AfterFunc(c.delay, func() { c.run(gen) })
	c.mu.Unlock()
}

// Flush runs a pending query immediately.
func (c *Controller) Flush() {
	c.mu.Lock()
	if c.timer == nil || !c.timer.Stop() {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	gen := c.generation
	c.mu.Unlock()
	c.run(gen)
}

func (c *Controller) run(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	input, filter := c.input, c.filter
	c.mu.Unlock()

	results := c.source.Suggest(input)
	if len(results) == 0 {
		if fb, ok := c.source.(Fallback); ok {
			results = fb.NoSuggestion(input, filter)
		}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("Dropped stale suggestions", zap.String("input", input))
		return
	}
	c.timer = nil
	c.results = results
	c.selected = 0
	if len(results) > 0 {
		c.state = StateShowing
	} else {
		c.state = StateEmpty
	}
	u := c.snapshot()
	c.mu.Unlock()
	c.publish(u)
}

// Dismiss closes the suggestions and keeps the input.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	c.invalidate()
	c.reset()
	u := c.snapshot()
	c.mu.Unlock()
	c.publish(u)
}

// Next moves the selection down, wrapping around.
func (c *Controller) Next() { c.move(1) }

// Prev moves the selection up, wrapping around.
func (c *Controller) Prev() { c.move(-1) }

func (c *Controller) move(delta int) {
	c.mu.Lock()
	n := len(c.results)
	if n == 0 {
		c.mu.Unlock()
		return
	}
	c.selected = ((c.selected+delta)%n + n) % n
	u := c.snapshot()
	c.mu.Unlock()
	c.publish(u)
}

// ActivateFilter locks the filter named by the input, if the input is a known
// type or extension and the source can filter. The input is cleared.
func (c *Controller) ActivateFilter() bool {
	fl, ok := c.source.(Filterable)
	if !ok {
		return false
	}

	c.mu.Lock()
	f, valid := search.ParseFilter(c.input)
	if !valid {
		c.mu.Unlock()
		return false
	}
	c.filter = f
	c.input = ""
	c.invalidate()
	c.reset()
	u := c.snapshot()
	c.mu.Unlock()

	fl.ApplyFilter(f)
	c.logger.Debug("Filter activated", zap.String("filter", string(f)))
	c.publish(u)
	return true
}

// Backspace clears the active filter when the input is already empty.
func (c *Controller) Backspace() bool {
	c.mu.Lock()
	if c.input != "" || c.filter == search.NoFilter {
		c.mu.Unlock()
		return false
	}
	c.filter = search.NoFilter
	u := c.snapshot()
	c.mu.Unlock()

	if fl, ok := c.source.(Filterable); ok {
		fl.ApplyFilter(search.NoFilter)
	}
	c.publish(u)
	return true
}

// Commit resolves the selected suggestion and reports whether anything was
// committed. It does nothing when no suggestion is shown.
func (c *Controller) Commit(ctx context.Context, newTab bool) (bool, error) {
	c.mu.Lock()
	if c.selected >= len(c.results) {
		c.mu.Unlock()
		return false, nil
	}
	selected := c.results[c.selected]
	c.mu.Unlock()
	return c.commit(ctx, &selected, newTab)
}

// Create commits the raw input, creating a note unless one with the same name
// already exists.
func (c *Controller) Create(ctx context.Context, newTab bool) (bool, error) {
	return c.commit(ctx, nil, newTab)
}

// commit runs the committer without holding mu. Input typed meanwhile bumps
// the generation and is left alone when the commit returns.
func (c *Controller) commit(ctx context.Context, selected *search.Result, newTab bool) (bool, error) {
	c.mu.Lock()
	prev := c.state
	input := c.input
	gen := c.invalidate()
	c.state = StateCommitting
	u := c.snapshot()
	c.mu.Unlock()
	c.publish(u)

	out, err := c.committer.Commit(ctx, selected, input, newTab)

	c.mu.Lock()
	current := gen == c.generation
	if err != nil {
		if current {
			c.state = prev
		}
		u = c.snapshot()
		c.mu.Unlock()
		c.logger.Error("Commit failed", zap.String("input", input), zap.Error(err))
		c.publish(u)
		return false, err
	}
	if current {
		c.input = out.Input
		c.reset()
	} else {
		c.logger.Debug("Input changed during commit", zap.String("input", c.input))
	}
	u = c.snapshot()
	c.mu.Unlock()
	if out.File != nil {
		c.logger.Info("Committed", zap.String("path", out.File.Path), zap.Bool("created", out.Created), zap.Bool("new_tab", newTab))
	}
	c.publish(u)
	return true, nil
}

// Close cancels any pending query.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidate()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Input returns the current input.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Filter returns the active filter.
func (c *Controller) Filter() search.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Results returns the suggestions on display.
func (c *Controller) Results() []search.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]search.Result(nil), c.results...)
}

// Selected returns the highlighted suggestion.
func (c *Controller) Selected() (search.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected >= len(c.results) {
		return search.Result{}, false
	}
	return c.results[c.selected], true
}

// invalidate cancels the pending query. Callers hold mu.
func (c *Controller) invalidate() uint64 {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return c.generation
}

// reset returns to idle without suggestions. Callers hold mu.
func (c *Controller) reset() {
	c.state = StateIdle
	c.results = nil
	c.selected = 0
}

func (c *Controller) snapshot() Update {
	return Update{
		State:    c.state,
		Input:    c.input,
		Filter:   c.filter,
		Results:  append([]search.Result(nil), c.results...),
		Selected: c.selected,
	}
}

func (c *Controller) publish(u Update) {
	c.mu.Lock()
	listeners := append([]func(Update){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}
