// Package api is the public library entry point: it wraps internal/config
// and internal/pipeline behind the same small "load options, run against a
// module, report a summary" shape this lineage's Obfuscator/Options facade
// exposes, so callers never need to reach into internal/ packages directly.
package api

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/pipeline"
)

// Options configures one Obfuscator, mirroring this lineage's
// config-path-plus-overrides constructor shape.
type Options struct {
	// ConfigPath is the JSON options file (spec.md §6). Empty means
	// defaults: every pass disabled, the random seed taken from
	// IROBF_RANDOM_SEED (all zero bytes when that variable is unset).
	ConfigPath string
	// PointerWidth selects 32- vs 64-bit flattener dispatcher state.
	// Zero means 64.
	PointerWidth int
}

// Obfuscator is a loaded options bundle ready to drive the pass pipeline
// over one or more IR modules.
type Obfuscator struct {
	bundle *config.OptionsBundle
	opts   Options
}

// NewObfuscator loads opts.ConfigPath (or defaults, if empty) and returns an
// Obfuscator ready to run.
func NewObfuscator(opts Options) (*Obfuscator, error) {
	bundle, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return &Obfuscator{bundle: bundle, opts: opts}, nil
}

// Bundle exposes the resolved options, e.g. so a caller can mutate an entry
// before Run or persist it with Save.
func (o *Obfuscator) Bundle() *config.OptionsBundle { return o.bundle }

// Run drives every enabled pass over m in spec.md §4.I's fixed order and
// returns the aggregate Summary.
func (o *Obfuscator) Run(m *ir.Module) (*pipeline.Summary, error) {
	return pipeline.Run(m, o.bundle, pipeline.Options{PointerWidth: o.opts.PointerWidth})
}

// Save persists the Obfuscator's current bundle as JSON (SPEC_FULL.md's
// supplemented "effective options" dump feature).
func (o *Obfuscator) Save(path string) error {
	return config.SaveConfig(path, o.bundle)
}
