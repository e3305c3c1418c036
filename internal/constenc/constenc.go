// Package constenc implements the Constant Encryptor of spec.md §4.D:
// scalar integer/FP constants are replaced with ciphertext held in a side
// global, decrypted inline at each use site.
package constenc

import (
	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// MinWidth is the narrowest bit width the encryptor accepts; constants
// narrower than this are left alone (spec.md §4.D, §8 boundary: "A constant
// of bit width 7: integer-encryption pass skips it; width 8 is encrypted").
const MinWidth = 8

// Eligible reports whether a constant of width w is a candidate at all.
// Structs, arrays, pointers, and narrower-than-8-bit scalars are never
// encrypted.
func Eligible(w int) bool { return w >= MinWidth }

// Plan is the result of encrypting one constant: the key/auxiliary values
// needed to both build the side global and emit the inverse IR, kept
// separate from IR emission so the arithmetic (and its round-trip
// invariant) is independently testable.
type Plan struct {
	Width int
	K     uint64 // subtractive key
	X     uint64 // XOR layer value, meaningful only when Level >= 1
	Level int
	Enc   uint64 // final ciphertext stored in the side global
}

// Encrypt computes the encryption plan for plain at the given level
// (0..3), per spec.md §4.D:
//
//	enc := bitcast(C, iW) - K
//	level >= 1: enc ^= X
//	level >= 2: enc ^= X*K
//	level >= 3: enc ^= -X
func Encrypt(plain uint64, width, level int, src *rng.Source) Plan {
	mask := widthMask(width)
	k := src.GetUint64() & mask
	x := src.GetUint64() & mask

	enc := (plain - k) & mask
	if level >= 1 {
		enc ^= x
	}
	if level >= 2 {
		enc ^= (x * k) & mask
	}
	if level >= 3 {
		enc ^= (-x) & mask
	}

	return Plan{Width: width, K: k, X: x, Level: level, Enc: enc & mask}
}

// Decrypt inverts Encrypt exactly: undo the XOR layers in reverse order,
// then add K back. This is the pure-arithmetic half of spec.md §8's
// round-trip property ("Encrypt/decrypt an integer constant at every
// supported bit width {8,16,32,64} and level {0..3}").
func (p Plan) Decrypt() uint64 {
	mask := widthMask(p.Width)
	enc := p.Enc
	if p.Level >= 3 {
		enc ^= (-p.X) & mask
	}
	if p.Level >= 2 {
		enc ^= (p.X * p.K) & mask
	}
	if p.Level >= 1 {
		enc ^= p.X
	}
	return (enc + p.K) & mask
}

func widthMask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

// EmitGlobal materializes Plan into a noobf-tagged private global holding
// the ciphertext (spec.md §4.D: "Store enc in a new private
// internal-linkage global, noobf-tagged").
func EmitGlobal(m *ir.Module, namePrefix string, p Plan) *ir.GlobalVariable {
	g := m.NewGlobal(namePrefix, ir.IntType(p.Width), ir.NewConstInt(p.Width, p.Enc))
	g.NoObf = true
	m.CompilerUsed.Append(g)
	return g
}

// EmitDecryptIR emits, at b's insertion point, a volatile 1-byte-aligned
// load of g followed by the reverse XOR layers and the final add + bitcast
// back to origType, mirroring spec.md §4.D's use-site substitution.
func EmitDecryptIR(b *ir.Builder, g *ir.GlobalVariable, p Plan, origType ir.Type) ir.Value {
	loaded := b.Load(g, ir.IntType(p.Width), true, 1)
	var x ir.Value = loaded

	if p.Level >= 3 {
		negX := ir.NewConstInt(p.Width, (-p.X)&widthMask(p.Width))
		x = b.Xor(x, negX)
	}
	if p.Level >= 2 {
		xk := ir.NewConstInt(p.Width, (p.X*p.K)&widthMask(p.Width))
		x = b.Xor(x, xk)
	}
	if p.Level >= 1 {
		x = b.Xor(x, ir.NewConstInt(p.Width, p.X))
	}
	x = b.Add(x, ir.NewConstInt(p.Width, p.K))
	return b.Bitcast(x, origType)
}

// IsScannableOperand reports whether an instruction operand at position
// opIdx of instruction in may have its constant operand replaced. It
// excludes allocas, calls to intrinsics, switches, the first two GEP
// operands, GEPs whose source element type is a struct, and PHI incoming
// values whose predecessor terminator is a switch. EH pads, atomics and
// call bundle operands have no representation in internal/ir, so there is
// no check for them here.
func IsScannableOperand(in *ir.Instruction, opIdx int, gepSrcIsStruct bool, phiPredIsSwitch bool) bool {
	switch in.Op {
	case ir.OpAlloca, ir.OpSwitch:
		return false
	case ir.OpCall, ir.OpIndirectCall:
		if len(in.Operands) > 0 {
			if callee, ok := in.Operands[0].(*ir.Function); ok && callee.IsIntrinsic {
				return false
			}
		}
	case ir.OpGEP:
		if opIdx < 2 {
			return false
		}
		if gepSrcIsStruct {
			return false
		}
	case ir.OpPhi:
		if phiPredIsSwitch {
			return false
		}
	}
	return true
}
