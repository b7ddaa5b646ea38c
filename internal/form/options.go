package form

import (
	"context"
	"log/slog"
	"time"

	"github.com/solatis/formkeeper/internal/types"
)

// DefaultDebounce is the delay between the last edit and the deferred
// whole-form validation.
const DefaultDebounce = 250 * time.Millisecond

// Config holds controller settings. Build it with Options.
type Config struct {
	Debounce         time.Duration
	Clock            Clock
	Logger           *slog.Logger
	Context          context.Context
	AsyncTimeout     time.Duration
	RetryFailedAsync bool
	Renderers        Renderers

	OnSubmittable func(bool)
	OnUpdated     func()
	StateAccessor func(func() types.Snapshot)
}

// Option is a function that modifies Config.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Debounce: DefaultDebounce,
		Clock:    realClock{},
		Logger:   slog.Default(),
		Context:  context.Background(),
	}
}

// WithDebounce sets the validation debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Debounce = d
		}
	}
}

// WithClock replaces the timer source.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithContext sets the parent context for async evaluations.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		if ctx != nil {
			c.Context = ctx
		}
	}
}

// WithAsyncTimeout bounds each async evaluator call.
func WithAsyncTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AsyncTimeout = d
	}
}

// WithRetryFailedAsync lets a failed async tuple be attempted again on the
// next render instead of staying pending.
func WithRetryFailedAsync(retry bool) Option {
	return func(c *Config) {
		c.RetryFailedAsync = retry
	}
}

// WithRenderers registers the field-type renderers. Every field type in the
// spec must have one.
func WithRenderers(r Renderers) Option {
	return func(c *Config) {
		c.Renderers = r
	}
}

// WithSubmittable registers the callback receiving the result of every
// whole-form validation.
func WithSubmittable(fn func(canSubmit bool)) Option {
	return func(c *Config) {
		c.OnSubmittable = fn
	}
}

// WithUpdated registers a callback fired after state or feedback changes,
// including when an async result lands.
func WithUpdated(fn func()) Option {
	return func(c *Config) {
		c.OnUpdated = fn
	}
}

// WithStateAccessor registers fn to receive the snapshot accessor once,
// during initialization.
func WithStateAccessor(fn func(get func() types.Snapshot)) Option {
	return func(c *Config) {
		c.StateAccessor = fn
	}
}
