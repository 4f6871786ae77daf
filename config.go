package streamblocks

import (
	"log/slog"

	"streamblocks/line"
	"streamblocks/source"
)

// Config holds the tunables spec.md §4.5 and SPEC_FULL.md §10 name for a
// StreamProcessor. Built by defaultConfig and mutated by Options, the way
// the teacher's internal/llm client options are threaded through.
type Config struct {
	MaxLineLength      int
	MaxBlockSize       int
	LinesBuffer        int
	EmitOriginalEvents bool
	EmitTextDeltas     bool
	AutoDetectAdapter  bool
	Logger             *slog.Logger

	// adapter is only consulted by New (the C=any constructor); NewTyped
	// callers pass their Adapter[C] directly since WithSourceAdapter can't
	// express a non-any chunk type through a non-generic Option.
	adapter source.Adapter[any]
}

func defaultConfig() Config {
	return Config{
		MaxLineLength:      line.DefaultMaxLineLength,
		MaxBlockSize:       1 << 20,
		LinesBuffer:        5,
		EmitOriginalEvents: true,
		EmitTextDeltas:     false,
		AutoDetectAdapter:  true,
		Logger:             slog.Default(),
	}
}

// Option mutates a Config; New and NewTyped apply them in order.
type Option func(*Config)

// WithMaxLineLength caps the length of any single accumulated line before
// truncation kicks in. n <= 0 disables the limit.
func WithMaxLineLength(n int) Option {
	return func(c *Config) { c.MaxLineLength = n }
}

// WithMaxBlockSize caps a candidate's accumulated_size before it is rejected
// with SIZE_EXCEEDED. n <= 0 disables the limit.
func WithMaxBlockSize(n int) Option {
	return func(c *Config) { c.MaxBlockSize = n }
}

// WithLinesBuffer sets how many recently-processed lines the processor
// retains for diagnostic logging around stream and block errors.
func WithLinesBuffer(n int) Option {
	return func(c *Config) { c.LinesBuffer = n }
}

// WithEmitOriginalEvents controls whether every upstream chunk is also
// forwarded untouched as an EventOriginalChunk, interleaved with the
// engine's own events.
func WithEmitOriginalEvents(b bool) Option {
	return func(c *Config) { c.EmitOriginalEvents = b }
}

// WithEmitTextDeltas controls whether extracted chunk text is emitted as
// EventTextDelta events, independent of line or block boundaries.
func WithEmitTextDeltas(b bool) Option {
	return func(c *Config) { c.EmitTextDeltas = b }
}

// WithAutoDetectAdapter controls whether New probes source.Detect against
// the first chunk when no explicit adapter was configured. Has no effect on
// NewTyped, whose adapter is always supplied explicitly.
func WithAutoDetectAdapter(b bool) Option {
	return func(c *Config) { c.AutoDetectAdapter = b }
}

// WithLogger overrides the *slog.Logger the processor logs through.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithSourceAdapter pins an explicit Adapter[any], disabling auto-detection.
// Only meaningful with New; NewTyped takes its adapter as a constructor
// argument.
func WithSourceAdapter(a source.Adapter[any]) Option {
	return func(c *Config) {
		c.adapter = a
		c.AutoDetectAdapter = false
	}
}
