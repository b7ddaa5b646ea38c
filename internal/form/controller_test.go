package form

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/formkeeper/internal/types"
)

func num(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// drivingSpec is the age/hasLicense/canDrive form.
func drivingSpec() types.FormSpec {
	return types.FormSpec{
		Sections: []types.Section{{Elements: []types.FieldSpec{
			{Name: "age", FieldType: "number"},
			{Name: "hasLicense", FieldType: "bool"},
			{Name: "carModel", FieldType: "text", ExistsIf: []string{"canDrive"}},
		}}},
		ConditionalFields: []types.ConditionalFieldSpec{{
			Name: "canDrive",
			Fn: func(s types.State) any {
				licensed, _ := s["hasLicense"].(bool)
				return num(s["age"]) >= 18 && licensed
			},
			DependsOn: []string{"age", "hasLicense"},
		}},
	}
}

type recorder struct {
	mu          sync.Mutex
	submittable []bool
	updates     int
}

func (r *recorder) options() []Option {
	return []Option{
		WithSubmittable(func(ok bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.submittable = append(r.submittable, ok)
		}),
		WithUpdated(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates++
		}),
	}
}

func (r *recorder) validations() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.submittable...)
}

func newController(t *testing.T, spec types.FormSpec, initial types.State, opts ...Option) *Controller {
	t.Helper()
	c, err := New(spec, initial, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestController_DrivingScenario(t *testing.T) {
	c := newController(t, drivingSpec(), types.State{"age": 16, "hasLicense": false},
		WithClock(&fakeClock{}))

	s := c.State()
	assert.Equal(t, false, s["canDrive"])
	assert.False(t, s.Has("carModel"))

	require.NoError(t, c.Edit("age", 20))
	s = c.State()
	assert.Equal(t, false, s["canDrive"], "hasLicense is still false")
	assert.False(t, s.Has("carModel"))

	require.NoError(t, c.Edit("hasLicense", true))
	s = c.State()
	assert.Equal(t, true, s["canDrive"])
	assert.False(t, s.Has("carModel"), "no reset fires on a transition to true")

	// Once visible and filled in, losing the license hides and clears it.
	require.NoError(t, c.Edit("carModel", "Volvo"))
	require.NoError(t, c.Edit("hasLicense", false))
	s = c.State()
	assert.Equal(t, false, s["canDrive"])
	assert.Nil(t, s["carModel"])
	assert.False(t, s.Has("carModel"), "never-initial field is removed, not set to nil")
}

func TestController_VisibilityResetOnlyOnStrictFalse(t *testing.T) {
	value := any(nil)
	spec := types.FormSpec{
		Sections: []types.Section{{Elements: []types.FieldSpec{
			{Name: "trigger", FieldType: "text"},
			{Name: "d", FieldType: "text", ExistsIf: []string{"c"}},
			{Name: "e", FieldType: "text", ExistsIf: []string{"c"}},
		}}},
		ConditionalFields: []types.ConditionalFieldSpec{{
			Name:      "c",
			Fn:        func(types.State) any { return value },
			DependsOn: []string{"trigger"},
		}},
	}
	c := newController(t, spec, types.State{"d": "keep", "e": "keep"}, WithClock(&fakeClock{}))

	for _, falsy := range []any{nil, 0, ""} {
		value = falsy
		require.NoError(t, c.Edit("trigger", "x"))
		s := c.State()
		assert.Equal(t, "keep", s["d"], "falsy %#v is not false", falsy)
		assert.Equal(t, "keep", s["e"])
	}

	value = false
	require.NoError(t, c.Edit("trigger", "y"))
	s := c.State()
	assert.True(t, s.Has("d"), "initial keys stay present")
	assert.Nil(t, s["d"])
	assert.Nil(t, s["e"])
}

func TestController_ResetPropagation(t *testing.T) {
	spec := types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{
		{Name: "country", FieldType: "text", OnChangeReset: "city"},
		{Name: "city", FieldType: "text"},
	}}}}
	c := newController(t, spec, types.State{"country": "SE", "city": "Lund"}, WithClock(&fakeClock{}))

	var seen []types.State
	require.NoError(t, c.Edit("country", "NO"))
	seen = append(seen, c.State())
	require.NoError(t, c.Edit("city", "Oslo"))
	require.NoError(t, c.Edit("country", nil))
	seen = append(seen, c.State())

	assert.Equal(t, types.State{"country": "NO", "city": nil}, seen[0])
	assert.Equal(t, types.State{"country": nil, "city": nil}, seen[1])
}

func TestController_DiffNoiseSuppression(t *testing.T) {
	c := newController(t, drivingSpec(), types.State{"age": 30, "hasLicense": true}, WithClock(&fakeClock{}))

	require.NoError(t, c.Edit("nickname", nil))
	assert.False(t, c.State().Has("nickname"))

	require.NoError(t, c.Edit("nickname", "Ace"))
	require.NoError(t, c.Edit("nickname", nil))
	snap := c.Snapshot()
	assert.False(t, snap.State.Has("nickname"))
	assert.NotContains(t, snap.Diff.Detailed.Added, "nickname")

	// Initial keys keep their slot when set to nil.
	require.NoError(t, c.Edit("age", nil))
	snap = c.Snapshot()
	assert.True(t, snap.State.Has("age"))
	assert.Contains(t, snap.Diff.Detailed.Updated, "age")
}

func TestController_RecomputeAllIdempotent(t *testing.T) {
	spec := drivingSpec()
	spec.ConditionalFields = append(spec.ConditionalFields, types.ConditionalFieldSpec{
		Name: "status",
		Fn: func(s types.State) any {
			if s["canDrive"] == true {
				return "driver"
			}
			return "passenger"
		},
		DependsOn: []string{"canDrive"},
	})
	c := newController(t, spec, types.State{"age": 40, "hasLicense": true}, WithClock(&fakeClock{}))

	first := c.State()
	assert.Equal(t, "driver", first["status"], "later conditional reads the just-updated earlier one")
	require.NoError(t, c.RecomputeAll())
	assert.Equal(t, first, c.State())
	require.NoError(t, c.RecomputeAll())
	assert.Equal(t, first, c.State())
}

func TestController_ForwardReferencedConditional(t *testing.T) {
	spec := types.FormSpec{
		Sections: []types.Section{{Elements: []types.FieldSpec{{Name: "age", FieldType: "number"}}}},
		ConditionalFields: []types.ConditionalFieldSpec{
			{
				Name: "label",
				Fn: func(s types.State) any {
					if s["adult"] == true {
						return "adult"
					}
					return "minor"
				},
				DependsOn: []string{"adult"},
			},
			{
				Name:      "adult",
				Fn:        func(s types.State) any { return num(s["age"]) >= 18 },
				DependsOn: []string{"age"},
			},
		},
	}
	c := newController(t, spec, types.State{"age": 30}, WithClock(&fakeClock{}))
	assert.Equal(t, true, c.State()["adult"])
	assert.Equal(t, "adult", c.State()["label"])

	require.NoError(t, c.RecomputeAll())
	assert.Equal(t, "adult", c.State()["label"])

	require.NoError(t, c.Edit("age", 10))
	assert.Equal(t, false, c.State()["adult"])
	assert.Equal(t, "minor", c.State()["label"])
}

func TestController_TransitiveDependents(t *testing.T) {
	spec := drivingSpec()
	spec.ConditionalFields = append(spec.ConditionalFields, types.ConditionalFieldSpec{
		Name:      "status",
		Fn:        func(s types.State) any { return s["canDrive"] == true },
		DependsOn: []string{"canDrive"},
	})
	c := newController(t, spec, types.State{"age": 16, "hasLicense": true}, WithClock(&fakeClock{}))
	assert.Equal(t, false, c.State()["status"])

	require.NoError(t, c.Edit("age", 18))
	assert.Equal(t, true, c.State()["status"])
}

func TestController_Debounce(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}

	var seenAge float64
	spec := drivingSpec()
	spec.Sections[0].Elements[0].ValidationFeedbackRules = []types.Rule{{
		Type: "spy",
		Condition: func(v any, _ types.RuleEnv) bool {
			seenAge = num(v)
			return true
		},
	}}

	c := newController(t, spec, types.State{"age": 16, "hasLicense": false},
		append(rec.options(), WithClock(clock))...)
	require.Len(t, rec.validations(), 1, "mount validates immediately")

	require.NoError(t, c.Edit("age", 17))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, c.Edit("hasLicense", true))
	clock.Advance(200 * time.Millisecond)
	assert.Len(t, rec.validations(), 1, "window restarted by the second edit")

	require.NoError(t, c.Edit("age", 21))
	clock.Advance(249 * time.Millisecond)
	assert.Len(t, rec.validations(), 1)
	clock.Advance(time.Millisecond)

	assert.Len(t, rec.validations(), 2, "edits within the window validate once")
	assert.Equal(t, 21.0, seenAge, "validation sees the latest state")
	assert.Equal(t, 0, clock.Active())
}

func TestController_EditArmsDebounce(t *testing.T) {
	clock := &fakeClock{}
	c := newController(t, drivingSpec(), types.State{}, WithClock(clock), WithDebounce(time.Second))

	require.NoError(t, c.Edit("unrelated", 1))
	assert.Equal(t, 1, clock.Active())
	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 1, clock.Active())
	clock.Advance(time.Millisecond)
	assert.Equal(t, 0, clock.Active())
}

func TestController_Flush(t *testing.T) {
	rec := &recorder{}
	c := newController(t, drivingSpec(), types.State{}, append(rec.options(), WithClock(&fakeClock{}))...)

	assert.False(t, c.Flush())
	require.NoError(t, c.Edit("age", 3))
	assert.True(t, c.Flush())
	assert.Len(t, rec.validations(), 2)
}

func TestController_ValidationFeedback(t *testing.T) {
	spec := types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{{
		Name:      "email",
		FieldType: "text",
		ValidationFeedbackRules: []types.Rule{
			{Type: "required", Label: "Required", Condition: func(v any, _ types.RuleEnv) bool {
				return v != nil && v != ""
			}},
			{Type: "format", Label: "Needs @", CheckOnChange: true, Condition: func(v any, _ types.RuleEnv) bool {
				s, _ := v.(string)
				return s == "" || contains(s, '@')
			}},
		},
	}}}}}

	rec := &recorder{}
	c := newController(t, spec, types.State{}, append(rec.options(), WithClock(&fakeClock{}))...)
	assert.Equal(t, []bool{false}, rec.validations(), "empty required field blocks submission")

	_, ok := c.Feedback("email")
	assert.False(t, ok, "never evaluated")

	require.NoError(t, c.Edit("email", ""))
	fb, ok := c.Feedback("email")
	require.True(t, ok)
	assert.True(t, fb.Valid, "only check-on-change rules run on edit")

	require.NoError(t, c.Blur("email"))
	fb, _ = c.Feedback("email")
	assert.Equal(t, types.Feedback{Type: "required", Label: "Required"}, fb)

	require.NoError(t, c.Edit("email", "nope"))
	fb, _ = c.Feedback("email")
	assert.Equal(t, "format", fb.Type)

	require.NoError(t, c.Edit("email", "a@b"))
	assert.True(t, c.Flush())
	assert.True(t, c.CanSubmit())
	assert.Len(t, c.AllFeedback(), 1)
}

func contains(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestController_RulePanicFailsClosed(t *testing.T) {
	spec := types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{{
		Name:      "x",
		FieldType: "text",
		ValidationFeedbackRules: []types.Rule{{Type: "broken", Condition: func(any, types.RuleEnv) bool {
			var m map[string]int
			m["boom"]++
			return true
		}}},
	}}}}}

	c := newController(t, spec, types.State{}, WithClock(&fakeClock{}))
	assert.False(t, c.CanSubmit())

	require.NoError(t, c.Blur("x"))
	fb, _ := c.Feedback("x")
	assert.False(t, fb.Valid)
	assert.True(t, errors.Is(fb.Err, types.ErrRulePanic))
}

func TestController_RequiredIfChangedReadsFormState(t *testing.T) {
	spec := types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{{
		Name:      "email",
		FieldType: "text",
		ValidationFeedbackRules: []types.Rule{{Type: "requiredIfChanged", Condition: func(v any, env types.RuleEnv) bool {
			snap := env.FormState()
			if _, changed := snap.Diff.Diff["email"]; !changed {
				return true
			}
			return v != nil && v != ""
		}}},
	}}}}}

	c := newController(t, spec, types.State{"email": "a@b"}, WithClock(&fakeClock{}))
	assert.True(t, c.CanSubmit())

	require.NoError(t, c.Edit("email", ""))
	c.Flush()
	assert.False(t, c.CanSubmit())
}

func TestController_StateAccessor(t *testing.T) {
	var get func() types.Snapshot
	calls := 0
	var fromCallback types.Snapshot

	c := newController(t, drivingSpec(), types.State{"age": 16, "hasLicense": false},
		WithClock(&fakeClock{}),
		WithStateAccessor(func(fn func() types.Snapshot) {
			calls++
			get = fn
		}),
		WithSubmittable(func(bool) {
			// Observers may read state from inside a callback.
			fromCallback = get()
		}))

	assert.Equal(t, 1, calls)
	require.NotNil(t, get)
	assert.Equal(t, false, fromCallback.State["canDrive"])

	require.NoError(t, c.Edit("age", 20))
	snap := get()
	assert.Equal(t, types.State{"age": 16, "hasLicense": false}, snap.InitialState)
	assert.Equal(t, 20, snap.State["age"])
	assert.Equal(t, 20, snap.Diff.Detailed.Updated["age"])
	assert.Equal(t, false, snap.Diff.Detailed.Added["canDrive"])
}

func TestController_SnapshotIsolation(t *testing.T) {
	initial := types.State{"age": 16, "hasLicense": false, "tags": []any{"a"}}
	c := newController(t, drivingSpec(), initial, WithClock(&fakeClock{}))

	initial["age"] = 99
	initial["tags"].([]any)[0] = "mutated"

	snap := c.Snapshot()
	assert.Equal(t, 16, snap.InitialState["age"], "initial state is copied at mount")
	assert.Equal(t, "a", snap.State["tags"].([]any)[0])

	snap.State["age"] = 1
	assert.Equal(t, 16, c.State()["age"], "snapshots are copies")

	before := c.Snapshot()
	require.NoError(t, c.Edit("age", 30))
	assert.Equal(t, 16, before.State["age"], "earlier snapshots stay valid")
}

func TestController_AsyncMemoization(t *testing.T) {
	var calls atomic.Int32
	spec := types.AsyncSpec{
		Key:       "options",
		DependsOn: []string{"make"},
		Evaluator: func(ctx context.Context, sub types.State) (any, error) {
			calls.Add(1)
			return []any{sub["make"].(string) + " 240"}, nil
		},
	}

	updated := make(chan struct{}, 4)
	c := newController(t, drivingSpec(), types.State{"make": "Volvo", "age": 30},
		WithClock(&fakeClock{}),
		WithUpdated(func() {
			select {
			case updated <- struct{}{}:
			default:
			}
		}))
	drain(updated)

	first := c.EvaluateAsync("carModel", spec)
	assert.True(t, first.Pending)
	c.WaitAsync()
	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("no update after async result")
	}

	require.NoError(t, c.Edit("age", 31))
	second := c.EvaluateAsync("carModel", spec)
	assert.False(t, second.Pending)
	assert.Equal(t, []any{"Volvo 240"}, second.Value)
	assert.Equal(t, int32(1), calls.Load())
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestController_FailedAsyncStaysPending(t *testing.T) {
	var calls atomic.Int32
	spec := types.AsyncSpec{
		Key:       "options",
		DependsOn: []string{"make"},
		Evaluator: func(context.Context, types.State) (any, error) {
			calls.Add(1)
			return nil, errors.New("catalog offline")
		},
	}
	c := newController(t, drivingSpec(), types.State{"make": "Saab"}, WithClock(&fakeClock{}))

	c.EvaluateAsync("carModel", spec)
	c.WaitAsync()

	res := c.EvaluateAsync("carModel", spec)
	assert.True(t, res.Pending)
	assert.Error(t, res.Err)
	c.WaitAsync()
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, c.Edit("make", "Volvo"))
	res = c.EvaluateAsync("carModel", spec)
	assert.True(t, res.Pending)
	assert.NoError(t, res.Err, "a new tuple gets a new attempt")
	c.WaitAsync()
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_SpecErrors(t *testing.T) {
	cyclic := drivingSpec()
	cyclic.ConditionalFields = append(cyclic.ConditionalFields,
		types.ConditionalFieldSpec{Name: "p", Fn: func(types.State) any { return 1 }, DependsOn: []string{"q"}},
		types.ConditionalFieldSpec{Name: "q", Fn: func(types.State) any { return 1 }, DependsOn: []string{"p"}},
	)
	_, err := New(cyclic, nil)
	assert.True(t, errors.Is(err, types.ErrConditionalCycle), "got %v", err)

	_, err = New(drivingSpec(), nil, WithRenderers(Renderers{"number": RendererFunc(Describe)}))
	assert.True(t, errors.Is(err, types.ErrUnknownFieldType), "got %v", err)
	assert.Contains(t, err.Error(), "hasLicense")

	_, err = New(types.FormSpec{Sections: []types.Section{{Elements: []types.FieldSpec{{FieldType: "text"}}}}}, nil)
	assert.True(t, errors.Is(err, types.ErrInvalidSpec), "got %v", err)
}

func TestController_Close(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	c, err := New(drivingSpec(), types.State{}, append(rec.options(), WithClock(clock))...)
	require.NoError(t, err)

	require.NoError(t, c.Edit("age", 20))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	clock.Advance(time.Second)
	assert.Len(t, rec.validations(), 1, "pending validation dropped on close")

	assert.ErrorIs(t, c.Edit("age", 1), types.ErrClosed)
	assert.ErrorIs(t, c.Blur("age"), types.ErrClosed)
	assert.ErrorIs(t, c.RecomputeAll(), types.ErrClosed)
	_, err = c.Render()
	assert.ErrorIs(t, err, types.ErrNoRenderers)
}
