// Package rtti is the driving pass for the Microsoft RTTI name scrambler
// (spec.md §4.H, tag "rtti"): a module-level pass (no per-function
// annotation resolution — descriptor globals don't belong to one function)
// that enforces the non-empty-seed precondition and calls
// internal/rttiscrambler.Scramble.
package rtti

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rttiscrambler"
)

// Run applies the RTTI scrambler to m if the "rtti" tag is enabled.
func Run(m *ir.Module, bundle *config.OptionsBundle) (*rttiscrambler.Result, error) {
	option := bundle.Get(config.TagRTTI)
	if !option.Enable {
		return &rttiscrambler.Result{}, nil
	}
	if err := config.RequireRandomSeed(bundle); err != nil {
		return nil, err
	}
	return rttiscrambler.Scramble(m, bundle.RandomSeed)
}
