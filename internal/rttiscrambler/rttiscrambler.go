// Package rttiscrambler implements the Microsoft RTTI Name Scrambler of
// spec.md §4.H, component H: it rewrites `??_R0…` type-descriptor name
// strings using a keyed SHA-256 transform, and persists the
// scrambled-to-original mapping so a later `whatis` lookup (SPEC_FULL.md's
// supplemented CLI command) can reverse one name back to its source.
//
// The persistence half follows this lineage's context-save/load idiom
// (gob-encode a small versioned struct to a file, decode it back) even
// though the per-name transform itself is new: spec.md §4.H specifies an
// exact, unrelated-to-this-lineage SHA-256 construction, so only the
// "remember what you scrambled so you can look it up later" shape carries
// over, not the renaming algorithm.
package rttiscrambler

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/obferr"
	"github.com/arkari/irobf/internal/rng"
)

const contextVersion = "irobf-rtti-v1"

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// descriptorNamePrefix marks the module-level globals this pass considers.
const descriptorNamePrefix = "??_R0"

// typeDescriptorTypeName is the ConstStruct.TypeName this pass requires an
// eligible global's initializer to carry (spec.md §4.H: "initializer is a
// struct with type-name prefix rtti.TypeDescriptor").
const typeDescriptorTypeName = "rtti.TypeDescriptor"

// nameOperandIndex is operand 2 of the type-descriptor struct (spec.md
// §4.H: "Read operand 2").
const nameOperandIndex = 2

// Result reports what Scramble did.
type Result struct {
	Scanned   int
	Scrambled int
	Skipped   int
}

// Scramble walks m's globals and rewrites every eligible RTTI descriptor
// name in place (spec.md §4.H). seed must be non-empty (spec.md §7, §8:
// "A config with empty randomSeed and RTTI eraser enabled: fatal error") —
// callers are expected to have already checked this via
// config.RequireRandomSeed; Scramble re-checks defensively and returns a
// *obferr.ConfigError if it somehow wasn't.
func Scramble(m *ir.Module, seed [32]byte) (*Result, error) {
	var zero [32]byte
	if seed == zero {
		return nil, obferr.NewConfigError("rttiscrambler: empty randomSeed", nil)
	}

	ctx := &Context{seed: seed, forward: make(map[string]string), reverse: make(map[string]string)}
	result := &Result{}

	for _, g := range m.Globals {
		if g.NoObf {
			continue
		}
		if len(g.Name) < len(descriptorNamePrefix) || g.Name[:len(descriptorNamePrefix)] != descriptorNamePrefix {
			continue
		}
		cs, ok := g.Init.(*ir.ConstStruct)
		if !ok || cs.TypeName != typeDescriptorTypeName {
			continue
		}
		result.Scanned++

		if len(cs.Fields) <= nameOperandIndex {
			return nil, obferr.NewStructuralError(fmt.Sprintf("rttiscrambler: %s: missing operand %d", g.Name, nameOperandIndex))
		}
		arr, ok := cs.Fields[nameOperandIndex].(*ir.ConstDataArray)
		if !ok {
			return nil, obferr.NewStructuralError(fmt.Sprintf("rttiscrambler: %s: operand %d is not a string constant", g.Name, nameOperandIndex))
		}

		original := cString(arr.Bytes)
		if !hasScramblePrefix(original) {
			result.Skipped++
			continue
		}

		scrambled := ctx.scrambleOne(original)
		cs.Fields[nameOperandIndex] = &ir.ConstDataArray{Bytes: nulTerminated(scrambled)}
		result.Scrambled++
	}

	m.RTTIContext = ctx
	return result, nil
}

func hasScramblePrefix(s string) bool {
	return len(s) >= 4 && (s[:4] == ".?AV" || s[:4] == ".?AU")
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func nulTerminated(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// keepByte reports whether byte c at a position >= 4 is left untouched by
// the scrambler (spec.md §4.H: "{'@','.','?','$', '\0'}").
func keepByte(c byte) bool {
	switch c {
	case '@', '.', '?', '$', 0:
		return true
	}
	return false
}

// ScrambleString applies the spec.md §4.H transform to one descriptor
// string in isolation, without any module or persistence context — the
// pure function spec.md §8's RTTI testable properties are stated against
// ("deterministic given (seed, input)").
func ScrambleString(seed [32]byte, original string) string {
	var hash [32]byte
	rng.SHA256(append(append([]byte{}, seed[:]...), original...), &hash)

	out := make([]byte, len(original))
	copy(out, original)
	for i := 4; i < len(out); i++ {
		if out[i] == 0 {
			break
		}
		if keepByte(out[i]) {
			continue
		}
		out[i] = alphabet[int(out[i]^hash[i%32])%len(alphabet)]
	}
	return string(out)
}

// Context is the per-compilation scrambling state: the seed and the
// scrambled<->original reverse-lookup maps the `whatis` CLI command reads.
type Context struct {
	seed    [32]byte
	forward map[string]string // original -> scrambled
	reverse map[string]string // scrambled -> original
}

func (c *Context) scrambleOne(original string) string {
	if s, ok := c.forward[original]; ok {
		return s
	}
	s := ScrambleString(c.seed, original)
	c.forward[original] = s
	c.reverse[s] = original
	return s
}

// Unscramble looks up the original descriptor string for a previously
// scrambled one.
func (c *Context) Unscramble(scrambled string) (string, bool) {
	original, ok := c.reverse[scrambled]
	return original, ok
}

// contextFile is the gob-encoded persisted form of a Context.
type contextFile struct {
	Version string
	Seed    [32]byte
	Forward map[string]string
	Reverse map[string]string
}

// Save persists ctx to path so a later process (e.g. `irobf whatis`) can
// reload it without re-running the scrambler.
func (c *Context) Save(path string) error {
	cf := contextFile{Version: contextVersion, Seed: c.seed, Forward: c.forward, Reverse: c.reverse}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cf); err != nil {
		return fmt.Errorf("rttiscrambler: encode context: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load reads a Context previously written by Save.
func Load(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rttiscrambler: read context: %w", err)
	}
	var cf contextFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cf); err != nil {
		return nil, fmt.Errorf("rttiscrambler: decode context: %w", err)
	}
	if cf.Version != contextVersion {
		return nil, fmt.Errorf("rttiscrambler: incompatible context version %q", cf.Version)
	}
	return &Context{seed: cf.Seed, forward: cf.Forward, reverse: cf.Reverse}, nil
}
