// internal/form/controller.go
package form

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/solatis/formkeeper/internal/asyncdep"
	"github.com/solatis/formkeeper/internal/diff"
	"github.com/solatis/formkeeper/internal/graph"
	"github.com/solatis/formkeeper/internal/types"
	"github.com/solatis/formkeeper/internal/validation"
)

/*
 * Reactive state controller.
 *
 * Owns the entity state of one form and keeps conditional fields, resets,
 * visibility and validation feedback consistent with it. Every transition
 * runs to completion under mu, and state is replaced, never mutated, so a
 * snapshot taken earlier stays valid.
 *
 * Transitions:
 *   - Initialize: state = deep copy of initial; RecomputeAll.
 *   - RecomputeAll: fold every conditional field in declaration order over the
 *     state so far; validate the whole form immediately.
 *   - Edit: stage the on-change reset, merge, drop a never-initial key set to
 *     nil, then recalculate dependents and validate the edited field with its
 *     check-on-change rules.
 *   - Recalculate dependents: cancel the debounce, refold the conditional
 *     fields reached from the edited key, null the visibility dependents of
 *     any that became exactly false, re-arm the debounce.
 *
 * Host callbacks (submittable, updated) are collected while the lock is held
 * and invoked after it is released, so they may call back into the
 * controller. Rule conditions run under the lock; the form-state accessor
 * they receive reads the state being validated, not the controller.
 */

// Controller is the live state machine of one form.
type Controller struct {
	mu sync.Mutex

	graph     *graph.Graph
	initial   types.State
	state     types.State
	feedback  map[string]types.Feedback
	canSubmit bool
	closed    bool

	debounce  *debouncer
	cache     *asyncdep.Cache
	renderers map[string]Renderer

	logger        *slog.Logger
	onSubmittable func(bool)
	onUpdated     func()
}

// New checks spec, mounts the form on a deep copy of initial and runs
// RecomputeAll. Spec errors wrap ErrInvalidSpec, ErrDuplicateField,
// ErrConditionalCycle or ErrUnknownFieldType.
func New(spec types.FormSpec, initial types.State, opts ...Option) (*Controller, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	g, err := graph.Build(spec)
	if err != nil {
		return nil, err
	}

	renderers, err := resolveRenderers(g.Fields, cfg.Renderers)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		graph:         g,
		initial:       initial.Clone(),
		state:         initial.Clone(),
		feedback:      make(map[string]types.Feedback),
		canSubmit:     true,
		debounce:      newDebouncer(cfg.Clock, cfg.Debounce),
		renderers:     renderers,
		logger:        cfg.Logger,
		onSubmittable: cfg.OnSubmittable,
		onUpdated:     cfg.OnUpdated,
		cache: asyncdep.New(cfg.Context, asyncdep.Options{
			Timeout:     cfg.AsyncTimeout,
			RetryFailed: cfg.RetryFailedAsync,
			Logger:      cfg.Logger,
		}),
	}

	if cfg.StateAccessor != nil {
		cfg.StateAccessor(c.Snapshot)
	}
	if err := c.RecomputeAll(); err != nil {
		return nil, err
	}

	c.logger.Debug("form mounted",
		"fields", len(g.Fields),
		"conditional_fields", len(g.Conditionals))
	return c, nil
}

// notifications are host callbacks deferred until the lock is released.
type notifications struct {
	submittable *bool
	updated     bool
}

func (c *Controller) fire(n notifications) {
	if n.submittable != nil && c.onSubmittable != nil {
		c.onSubmittable(*n.submittable)
	}
	if n.updated && c.onUpdated != nil {
		c.onUpdated()
	}
}

// RecomputeAll refolds every conditional field and validates the whole form.
func (c *Controller) RecomputeAll() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrClosed
	}

	next := c.state
	for _, cf := range c.graph.Conditionals {
		next = next.With(map[string]any{cf.Name: cf.Fn(next)})
	}
	c.state = next

	ok := c.validate()
	c.mu.Unlock()

	c.fire(notifications{submittable: &ok, updated: true})
	return nil
}

// Edit sets key to value. A nil value is the absent value.
func (c *Controller) Edit(key string, value any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrClosed
	}

	next := c.state
	if target, ok := c.graph.Resets[key]; ok {
		next = c.clearFields(next, target)
		c.logger.Debug("reset staged", "field", key, "reset", target)
	}
	next = next.With(map[string]any{key: value})
	if value == nil && !c.initial.Has(key) {
		next = next.Without(key)
	}
	c.state = next

	c.recalculateDependents(key)
	c.validateField(key, true)
	c.mu.Unlock()

	c.fire(notifications{updated: true})
	return nil
}

// Blur validates key against all of its rules.
func (c *Controller) Blur(key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrClosed
	}
	changed := c.validateField(key, false)
	c.mu.Unlock()

	c.fire(notifications{updated: changed})
	return nil
}

// recalculateDependents refolds the conditional fields reached from key and
// re-arms the debounced validation. Caller holds mu.
func (c *Controller) recalculateDependents(key string) {
	c.debounce.cancel()

	next := c.state
	for _, cf := range c.graph.Dependents(key) {
		value := cf.Fn(next)
		if b, ok := value.(bool); ok && !b {
			if hidden := c.graph.Visibility[cf.Name]; len(hidden) > 0 {
				next = c.clearFields(next, hidden...)
				c.logger.Debug("visibility reset",
					"conditional_field", cf.Name,
					"fields", hidden)
			}
		}
		next = next.With(map[string]any{cf.Name: value})
	}
	c.state = next

	c.debounce.arm(c.debounceFired)
}

// clearFields sets keys to the absent value: nil for keys of the initial
// state, removed otherwise so the diff does not report them as added.
func (c *Controller) clearFields(s types.State, keys ...string) types.State {
	next := s.With(nil)
	for _, k := range keys {
		if c.initial.Has(k) {
			next[k] = nil
		} else {
			delete(next, k)
		}
	}
	return next
}

// debounceFired runs the deferred whole-form validation unless a later edit
// superseded it.
func (c *Controller) debounceFired(gen uint64) {
	c.mu.Lock()
	if c.closed || !c.debounce.claim(gen) {
		c.mu.Unlock()
		return
	}
	ok := c.validate()
	c.mu.Unlock()

	c.fire(notifications{submittable: &ok})
}

// Flush runs a pending debounced validation now. It reports whether one was
// pending.
func (c *Controller) Flush() bool {
	c.mu.Lock()
	if c.closed || !c.debounce.flush() {
		c.mu.Unlock()
		return false
	}
	ok := c.validate()
	c.mu.Unlock()

	c.fire(notifications{submittable: &ok})
	return true
}

// validateField stores feedback for field when it has rules and reports
// whether it did. Caller holds mu.
func (c *Controller) validateField(field string, onlyIfCheckOnChange bool) bool {
	rules, ok := c.graph.Rules[field]
	if !ok {
		return false
	}

	env := types.RuleEnv{State: c.state, FormState: c.accessorLocked()}
	fb := validation.EvaluateField(field, rules, env, onlyIfCheckOnChange)
	c.logRuleError(field, fb)

	next := make(map[string]types.Feedback, len(c.feedback)+1)
	for k, v := range c.feedback {
		next[k] = v
	}
	next[field] = fb
	c.feedback = next
	return true
}

// validate computes submittability over the full rule set. Caller holds mu.
func (c *Controller) validate() bool {
	accessor := c.accessorLocked()
	failing := validation.FailingFields(c.state, accessor, c.graph.Fields, c.graph.Rules)
	for field, fb := range failing {
		c.logRuleError(field, fb)
	}
	c.canSubmit = len(failing) == 0
	c.logger.Debug("form validated", "can_submit", c.canSubmit, "failing", len(failing))
	return c.canSubmit
}

func (c *Controller) logRuleError(field string, fb types.Feedback) {
	if fb.Err != nil && errors.Is(fb.Err, types.ErrRulePanic) {
		c.logger.Warn("validation rule failed closed",
			"field", field,
			"rule", fb.Type,
			"error", fb.Err)
	}
}

// accessorLocked returns a form-state accessor bound to the current state.
// It never takes mu, so rule conditions may call it during validation.
func (c *Controller) accessorLocked() func() types.Snapshot {
	initial, state := c.initial, c.state
	return func() types.Snapshot {
		return types.Snapshot{
			InitialState: initial,
			State:        state,
			Diff:         diff.States(initial, state),
		}
	}
}

// Snapshot returns the initial state, the current state and their diff. The
// states are copies the caller may keep or modify.
func (c *Controller) Snapshot() types.Snapshot {
	c.mu.Lock()
	initial, state := c.initial, c.state
	c.mu.Unlock()

	return types.Snapshot{
		InitialState: initial.Clone(),
		State:        state.Clone(),
		Diff:         diff.States(initial, state),
	}
}

// State returns a copy of the current entity state.
func (c *Controller) State() types.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Feedback returns the stored feedback for field. ok is false if the field
// was never validated.
func (c *Controller) Feedback(field string) (types.Feedback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fb, ok := c.feedback[field]
	return fb, ok
}

// AllFeedback returns a copy of every stored feedback entry.
func (c *Controller) AllFeedback() map[string]types.Feedback {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.Feedback, len(c.feedback))
	for k, v := range c.feedback {
		out[k] = v
	}
	return out
}

// CanSubmit returns the result of the last whole-form validation.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmit
}

// EvaluateAsync returns the memoized result of spec for field, or Pending
// while the evaluator runs. The updated callback fires once it lands.
func (c *Controller) EvaluateAsync(field string, spec types.AsyncSpec) asyncdep.Result {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	id := fmt.Sprintf("%s.%s", field, spec.Key)
	return c.cache.Evaluate(id, spec.Evaluator, spec.DependsOn, state, c.asyncResolved)
}

func (c *Controller) asyncResolved() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.fire(notifications{updated: true})
	}
}

// WaitAsync blocks until every async evaluation started so far has finished.
func (c *Controller) WaitAsync() {
	c.cache.Wait()
}

// Close stops the debounce timer and cancels in-flight async evaluations.
// Later transitions return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.debounce.cancel()
	c.mu.Unlock()

	c.cache.Close()
	return nil
}

// Graph exposes the derived dependency graph.
func (c *Controller) Graph() *graph.Graph {
	return c.graph
}
