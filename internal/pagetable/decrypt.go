package pagetable

import (
	"fmt"

	"github.com/arkari/irobf/internal/ir"
)

// BuildDecryptIR is buildPageTableDecryptIR (spec.md §4.C): given a
// starting index (literal or computed), walk the optional per-function
// chain then the module chain, both last page to first, inverting the
// mask cipher at each step, and finish with a GEP+load of the objects
// array at finalType. It must reach the object-array load exactly once;
// BuildDecryptIR always does so structurally (the loop below is exactly
// len(enhanced.Pages)+len(module.Pages) GEP/load pairs followed by one
// terminal GEP/load), so that invariant cannot be violated by construction.
//
// The rotate amount for mask-cipher cases 2 and 5 depends on the object's
// position in the page being decrypted — the same index value used as that
// step's GEP offset (spec.md §4.C: "decryption therefore uses the value
// being decrypted one step earlier in the chain, which is the same
// integer"), so each step threads its own GEP index into its own rotate
// amount, not a value carried over from a different step.
func BuildDecryptIR(b *ir.Builder, m *ir.Module, startIndex ir.Value, literalStart *uint32, enhanced, module *Descriptor, enhancedKey, moduleKey ObjKey, finalType ir.Type) (ir.Value, error) {
	if module == nil {
		return nil, fmt.Errorf("pagetable: BuildDecryptIR requires a module chain")
	}

	current := startIndex
	if literalStart != nil {
		hidden := m.NewGlobal("InitIndex", ir.IntType(32), ir.NewConstInt(32, uint64(*literalStart)))
		hidden.NoObf = true
		m.CompilerUsed.Append(hidden)
		current = b.Load(hidden, ir.IntType(32), true, 1)
	}

	if enhanced != nil {
		for i := len(enhanced.Pages) - 1; i >= 0; i-- {
			page := enhanced.Pages[i]
			gep := b.GEP(page, current, ir.IntType(32))
			raw := b.Load(gep, ir.IntType(32), true, 1)
			current = decodeStepIR(b, raw, current, enhancedKey, enhanced.Rounds, enhanced.BitsPerRound)
		}
	}

	for i := len(module.Pages) - 1; i >= 0; i-- {
		page := module.Pages[i]
		gep := b.GEP(page, current, ir.IntType(32))
		raw := b.Load(gep, ir.IntType(32), true, 1)
		current = decodeStepIR(b, raw, current, moduleKey, module.Rounds, module.BitsPerRound)
	}

	finalGEP := b.GEP(module.ObjectsGlobal, current, finalType)
	result := b.Load(finalGEP, finalType, false, 0)
	return result, nil
}

// decodeStepIR emits the inverse mask-cipher rounds for one page, applied
// to raw (the just-loaded ciphertext), using gepIndex as the "j" operand
// for the rotate primitives — it is the same value used to GEP into this
// page, per the identity described above.
func decodeStepIR(b *ir.Builder, raw ir.Value, gepIndex ir.Value, key ObjKey, rounds, bitsPerRound int) ir.Value {
	plan := roundPlan(key.High, rounds, bitsPerRound)
	pms := prevMs(plan)
	keyLowConst := ir.NewConstInt(32, uint64(key.Low))

	x := raw
	for i := len(plan) - 1; i >= 0; i-- {
		op := plan[i]
		prevM := pms[i]
		switch {
		case op.m == 0 && prevM == 0:
			x = b.Xor(x, keyLowConst)
		case op.m == 0:
			x = b.Neg(x)
		case !op.applied:
			// no-op round; x unchanged
		case op.m == 1:
			x = b.Neg(x)
		case op.m == 2:
			amt := rotateAmount(b, keyLowConst, gepIndex, true)
			x = b.Rotr(x, amt)
		case op.m == 3:
			x = b.ByteSwap(x)
		case op.m == 4:
			x = b.Not(x)
		case op.m == 5:
			amt := rotateAmount(b, keyLowConst, gepIndex, false)
			x = b.Rotl(x, amt)
		}
	}
	return x
}

// rotateAmount emits (keyLow +/- j) mod 32 as And(_, 31), since 32 is a
// power of two and the mod-32 reduction used throughout spec.md §4.C is
// exactly a low-5-bit mask.
func rotateAmount(b *ir.Builder, keyLow ir.Value, j ir.Value, add bool) ir.Value {
	var sum ir.Value
	if add {
		sum = b.Add(keyLow, j)
	} else {
		sum = b.Sub(keyLow, j)
	}
	return b.And(sum, ir.NewConstInt(32, 31))
}
