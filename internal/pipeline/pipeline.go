// Package pipeline drives PDF rasterization and orientation correction,
// turning a source document into an ordered sequence of upright page
// images, optionally stitched into one composite.
package pipeline

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/pagemill/pagemill/internal/orient"
	"github.com/pagemill/pagemill/internal/render"
)

const (
	// DefaultDPI is the rasterization resolution used when none is given.
	DefaultDPI = 300
	// DefaultMaxPages is the per-document page ceiling, a guardrail
	// against unbounded work.
	DefaultMaxPages = 10
)

// Config holds configuration for the conversion pipeline. It is passed
// by value so concurrent requests with different settings never
// interfere.
type Config struct {
	DPI         float64
	MaxPages    int
	Workers     int // page-level parallelism for orientation work; 0 = NumCPU
	Orientation orient.Config
}

// DefaultConfig returns a pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		DPI:         DefaultDPI,
		MaxPages:    DefaultMaxPages,
		Workers:     runtime.NumCPU(),
		Orientation: orient.DefaultConfig(),
	}
}

// Validate rejects configurations that must never reach rendering.
func (c Config) Validate() error {
	if c.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %v", c.DPI)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive, got %d", c.MaxPages)
	}
	return nil
}

// Inspector pre-validates document bytes and reports the declared page
// count before any rendering happens.
type Inspector func(data []byte) (render.DocumentInfo, error)

// Pipeline converts documents using a render backend and an orientation
// detector. Construct it with NewBuilder; a zero Pipeline is not usable.
type Pipeline struct {
	cfg      Config
	open     render.Opener
	inspect  Inspector
	detector orient.Detector
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	open     render.Opener
	inspect  Inspector
	detector orient.Detector
}

// NewBuilder creates a pipeline builder with defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig(), open: render.Open, inspect: render.Inspect}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithDPI sets the rasterization resolution.
func (b *Builder) WithDPI(dpi float64) *Builder {
	if dpi > 0 {
		b.cfg.DPI = dpi
	}
	return b
}

// WithMaxPages sets the page ceiling.
func (b *Builder) WithMaxPages(n int) *Builder {
	if n > 0 {
		b.cfg.MaxPages = n
	}
	return b
}

// WithWorkers bounds page-level parallelism.
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Workers = n
	}
	return b
}

// WithOrientation sets the orientation detection config.
func (b *Builder) WithOrientation(cfg orient.Config) *Builder {
	b.cfg.Orientation = cfg
	return b
}

// WithOpener overrides the render backend, mainly for tests.
func (b *Builder) WithOpener(open render.Opener) *Builder {
	if open != nil {
		b.open = open
	}
	return b
}

// WithInspector overrides document pre-validation, mainly for tests.
func (b *Builder) WithInspector(inspect Inspector) *Builder {
	if inspect != nil {
		b.inspect = inspect
	}
	return b
}

// WithDetector injects a pre-built orientation detector, mainly for tests.
func (b *Builder) WithDetector(d orient.Detector) *Builder {
	b.detector = d
	return b
}

// Build validates the configuration and assembles the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.open == nil {
		return nil, errors.New("no render backend configured")
	}
	if b.inspect == nil {
		b.inspect = render.Inspect
	}

	detector := b.detector
	if detector == nil {
		d, err := orient.NewDetector(b.cfg.Orientation)
		if err != nil {
			return nil, fmt.Errorf("orientation detector: %w", err)
		}
		detector = d
	}

	return &Pipeline{cfg: b.cfg, open: b.open, inspect: b.inspect, detector: detector}, nil
}

// Config returns the pipeline's effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// WithDPI returns a pipeline that renders at the given resolution,
// sharing the detector and render backend. Config is held by value, so
// per-request overrides never interfere with concurrent conversions.
func (p *Pipeline) WithDPI(dpi float64) *Pipeline {
	if dpi <= 0 || dpi == p.cfg.DPI {
		return p
	}
	clone := *p
	clone.cfg.DPI = dpi
	return &clone
}

// Close releases detector resources.
func (p *Pipeline) Close() error {
	if p.detector != nil {
		return p.detector.Close()
	}
	return nil
}
