package linkstore

import (
	"time"

	"github.com/sundayezeilo/shortlink/sluggen"
)

const (
	DefaultCodeLength = 6
	MinCodeLength     = 3
	MaxCodeLength     = 64
)

// Clock supplies the current time for createdAt stamping and expiration checks.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Options is the resolved configuration shared by every Store implementation.
type Options struct {
	Clock      Clock
	Generator  sluggen.Generator
	CodeLength int
}

// Option customises a Store.
type Option func(*Options)

// WithClock substitutes the clock, mainly so tests can drive expiration.
func WithClock(c Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.Clock = c
		}
	}
}

// WithGenerator substitutes the short code generator.
func WithGenerator(g sluggen.Generator) Option {
	return func(o *Options) {
		if g != nil {
			o.Generator = g
		}
	}
}

// WithCodeLength sets the short code length. Values outside
// [MinCodeLength, MaxCodeLength] fall back to DefaultCodeLength.
func WithCodeLength(n int) Option {
	return func(o *Options) { o.CodeLength = n }
}

// NewOptions applies opts over the defaults. Backends call it from their constructors.
func NewOptions(opts ...Option) Options {
	o := Options{
		Clock:      SystemClock,
		Generator:  sluggen.NewBase62(),
		CodeLength: DefaultCodeLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.CodeLength < MinCodeLength || o.CodeLength > MaxCodeLength {
		o.CodeLength = DefaultCodeLength
	}
	return o
}

// NewCode draws one candidate short code. Uniqueness is the caller's concern.
func (o Options) NewCode() (string, error) {
	return o.Generator.Generate(o.CodeLength)
}
