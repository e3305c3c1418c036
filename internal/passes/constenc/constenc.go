// Package constenc implements the constant integer/FP encryption passes of
// spec.md §4.G ("Constant Integer/FP Encryption Passes"), component G: it
// scans a function's instructions for scalar constant operands and drives
// internal/constenc (component D) to replace each with a decrypted side
// global. Two thin entry points, RunInt (tag "cie") and RunFP (tag "cfe"),
// share the scan/rewrite loop and differ only in which ir.Value kind they
// look for.
package constenc

import (
	"github.com/arkari/irobf/internal/config"
	"github.com/arkari/irobf/internal/constenc"
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// Result reports what one pass invocation did.
type Result struct {
	FunctionCount int
	RewriteCount  int
}

// RunInt is the constant-integer-encryption pass (tag "cie"): every
// eligible *ir.ConstInt operand is replaced with a decrypted side global.
func RunInt(m *ir.Module, bundle *config.OptionsBundle, src *rng.Source) (*Result, error) {
	option := bundle.Get(config.TagCIE)
	if !option.Enable {
		return &Result{}, nil
	}
	return run(m, config.TagCIE, option, src, func(v ir.Value) (int, uint64, bool) {
		ci, ok := v.(*ir.ConstInt)
		if !ok || !constenc.Eligible(ci.Width) {
			return 0, 0, false
		}
		return ci.Width, ci.Val, true
	})
}

// RunFP is the constant-FP-encryption pass (tag "cfe"): every eligible
// *ir.ConstFP operand (carried as its raw bit pattern) is replaced with a
// decrypted side global, exactly as RunInt treats integers, per spec.md
// §4.D's "bitcast(C, iW)" framing that makes FP constants just another
// fixed-width scalar to the encryptor.
func RunFP(m *ir.Module, bundle *config.OptionsBundle, src *rng.Source) (*Result, error) {
	option := bundle.Get(config.TagCFE)
	if !option.Enable {
		return &Result{}, nil
	}
	return run(m, config.TagCFE, option, src, func(v ir.Value) (int, uint64, bool) {
		cf, ok := v.(*ir.ConstFP)
		if !ok || !constenc.Eligible(cf.Width) {
			return 0, 0, false
		}
		return cf.Width, cf.Bits, true
	})
}

type extractFn func(v ir.Value) (width int, val uint64, ok bool)

func run(m *ir.Module, tag config.Tag, option config.ObfuscationOption, src *rng.Source, extract extractFn) (*Result, error) {
	result := &Result{}
	for _, fn := range m.Functions {
		if !fn.Eligible() {
			continue
		}
		eff, err := config.ResolveAnnotations(tag, option, fn.Annotations, fn.Name, true)
		if err != nil {
			return nil, err
		}
		if !eff.Enable {
			continue
		}

		// Expand constant expressions before scanning (spec.md §4.D, §9 open
		// question: this order must not be interleaved with the rewrite).
		ir.ExpandConstantExprs(fn)

		n, err := rewriteFunction(m, fn, eff.Level, src, extract)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			result.FunctionCount++
			result.RewriteCount += n
		}
	}
	return result, nil
}

func rewriteFunction(m *ir.Module, fn *ir.Function, level int, src *rng.Source, extract extractFn) (int, error) {
	count := 0
	for _, bb := range fn.Blocks {
		preds := bb.Preds
		for _, in := range append(append([]*ir.Instruction{}, bb.Instrs...), bb.Term) {
			if in == nil {
				continue
			}
			gepSrcIsStruct := in.Op == ir.OpGEP && in.ElemType.Kind == ir.TStruct
			for i, operand := range in.Operands {
				phiPredIsSwitch := false
				if in.Op == ir.OpPhi && i < len(preds) {
					p := preds[i]
					phiPredIsSwitch = p.Term != nil && p.Term.Op == ir.OpSwitch
				}
				if !constenc.IsScannableOperand(in, i, gepSrcIsStruct, phiPredIsSwitch) {
					continue
				}
				width, val, ok := extract(operand)
				if !ok {
					continue
				}

				plan := constenc.Encrypt(val, width, level, src)
				g := constenc.EmitGlobal(m, namePrefix(m, operand), plan)

				b := ir.NewBuilderAt(bb, in)
				repl := constenc.EmitDecryptIR(b, g, plan, operand.ValueType())
				in.Operands[i] = repl
				count++
			}
		}
	}
	return count, nil
}

func namePrefix(m *ir.Module, v ir.Value) string {
	switch v.(type) {
	case *ir.ConstFP:
		return m.Name + "_CFPEnc"
	default:
		return m.Name + "_CIEnc"
	}
}
