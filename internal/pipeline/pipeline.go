// Package pipeline implements the Pass Pipeline Manager of spec.md §4.I,
// component I: it resolves obfuscation options, then instantiates and
// drives every pass in the exact fixed order the specification mandates.
//
// Ordering matters (spec.md §2, §4.I): indirections run after constant
// encryption so that encrypted constants are never themselves indirected;
// flattening runs after call and global-variable indirection so the
// dispatcher blocks it creates don't pick up extra indirections later, but
// before branch indirection so the flattener's own dispatch branch becomes
// indirect too.
package pipeline

import (
	"github.com/arkari/irobf/internal/config"
	cintenc "github.com/arkari/irobf/internal/passes/constenc"
	"github.com/arkari/irobf/internal/passes/fla"
	"github.com/arkari/irobf/internal/passes/icall"
	"github.com/arkari/irobf/internal/passes/indbr"
	"github.com/arkari/irobf/internal/passes/indgv"
	"github.com/arkari/irobf/internal/passes/rtti"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// Summary aggregates every pass's result for logging/reporting (the CLI's
// `run` subcommand prints this; SaveConfig-style callers can inspect it
// programmatically too).
type Summary struct {
	ConstIntEncrypted  *cintenc.Result
	IndirectGlobalVars *indgv.Result
	ConstFPEncrypted   *cintenc.Result
	IndirectCalls      *icall.Result
	Flattened          *fla.Result
	IndirectBranches   *indbr.Result
	RTTIScrambled      int
}

// Options configures one pipeline run beyond the OptionsBundle itself.
type Options struct {
	// PointerWidth selects 32- vs 64-bit flattener dispatcher state
	// (spec.md §4.F step 4). Defaults to 64 when zero.
	PointerWidth int
}

// Run resolves bundle and drives every pass over m in spec.md §4.I's fixed
// order: constant-int encryption, indirect global variable, constant-FP
// encryption, (string encryption — external, not invoked here), indirect
// call, flattening, indirect branch, RTTI scrambler.
func Run(m *ir.Module, bundle *config.OptionsBundle, opts Options) (*Summary, error) {
	pointerWidth := opts.PointerWidth
	if pointerWidth == 0 {
		pointerWidth = 64
	}

	src := rng.NewSource(bundle.RandomSeed)
	summary := &Summary{}
	var err error

	summary.ConstIntEncrypted, err = cintenc.RunInt(m, bundle, src)
	if err != nil {
		return nil, err
	}

	summary.IndirectGlobalVars, err = indgv.Run(m, bundle, src)
	if err != nil {
		return nil, err
	}

	summary.ConstFPEncrypted, err = cintenc.RunFP(m, bundle, src)
	if err != nil {
		return nil, err
	}

	// String encryption is an external collaborator (spec.md §1): its
	// existence is assumed between constant-FP encryption and indirect
	// call, but its internals are out of scope and it is not driven here.

	summary.IndirectCalls, err = icall.Run(m, bundle, src)
	if err != nil {
		return nil, err
	}

	summary.Flattened, err = fla.Run(m, bundle, pointerWidth, src)
	if err != nil {
		return nil, err
	}

	summary.IndirectBranches, err = indbr.Run(m, bundle, src)
	if err != nil {
		return nil, err
	}

	rttiResult, err := rtti.Run(m, bundle)
	if err != nil {
		return nil, err
	}
	summary.RTTIScrambled = rttiResult.Scrambled

	return summary, nil
}
