// Package fla is the driving pass for the control-flow flattener (spec.md
// §4.F, tag "fla"): it resolves the per-function effective option and
// calls internal/flatten.Flatten for every eligible function.
package fla

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/flatten"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// Result reports what the pass did across the module.
type Result struct {
	FunctionsFlattened int
	TotalCases         int
}

// Run applies the flattener across m. pointerWidth selects 32- vs 64-bit
// dispatcher state (spec.md §4.F step 4: "bit width chosen by host pointer
// size").
func Run(m *ir.Module, bundle *config.OptionsBundle, pointerWidth int, src *rng.Source) (*Result, error) {
	option := bundle.Get(config.TagFla)
	if !option.Enable {
		return &Result{}, nil
	}
	use64 := pointerWidth >= 64

	result := &Result{}
	for _, fn := range m.Functions {
		if !fn.Eligible() {
			continue
		}
		eff, err := config.ResolveAnnotations(config.TagFla, option, fn.Annotations, fn.Name, true)
		if err != nil {
			return nil, err
		}
		if !eff.Enable {
			continue
		}
		r, err := flatten.Flatten(fn, use64, src)
		if err != nil {
			return nil, err
		}
		if r.Flattened {
			result.FunctionsFlattened++
			result.TotalCases += r.CaseCount
		}
	}
	return result, nil
}
