package pagetable

import (
	"fmt"

	"github.com/arkari/irobf/internal/ir"
	"github.com/arkari/irobf/internal/rng"
)

// Descriptor is a PageTableDescriptor (spec.md §3): the shuffled object
// list, the object -> index bijection, the object -> key map, and the
// generated globals (objects array first, then pages 0..L-1).
type Descriptor struct {
	Objects       []ir.Value
	IndexOf       map[ir.Value]int
	Keys          map[ir.Value]ObjKey
	ObjectsGlobal *ir.GlobalVariable
	Pages         []*ir.GlobalVariable
	pageValues    [][]uint32 // kept for decrypt-IR emission and tests
	Rounds        int
	BitsPerRound  int
}

// BuildModuleTable is createPageTable (spec.md §4.C): shuffles objects,
// emits the objects array, then repeats loopCount times: reshuffle,
// encrypt each object's current index with the mask cipher (8 rounds,
// 3-bit slices), emit a page global. Every generated global is appended to
// m's compiler-used set, tagged noobf, and given internal linkage (spec.md
// §4.C step 2: "private internal-linkage").
func BuildModuleTable(m *ir.Module, prefix string, objects []ir.Value, keys map[ir.Value]ObjKey, loopCount int, src *rng.Source) (*Descriptor, error) {
	return buildTable(m, prefix, objects, keys, loopCount, 8, 3, nil, ir.LinkageInternal, src)
}

// BuildEnhancedTable is enhancedPageTable (spec.md §4.C): a per-function
// layer on top of a module chain. The per-function chain length equals
// level, each page's mask cipher runs 4*level rounds with 2-bit slices, and
// the starting index for each object comes from baseIndexOf (the module
// table's current map) unless the object already has a per-function
// starting index recorded. level == 0 means no enhancement layer exists.
// Its generated globals get private linkage (spec.md §4.C "Enhancement":
// "private-linkage"), distinct from the module table's internal linkage
// since each per-function chain is its own unshared copy.
func BuildEnhancedTable(m *ir.Module, prefix string, objects []ir.Value, keys map[ir.Value]ObjKey, level int, baseIndexOf map[ir.Value]int, src *rng.Source) (*Descriptor, error) {
	if level <= 0 {
		return nil, nil
	}
	return buildTable(m, prefix, objects, keys, level, 4*level, 2, baseIndexOf, ir.LinkagePrivate, src)
}

func buildTable(m *ir.Module, prefix string, objects []ir.Value, keys map[ir.Value]ObjKey, loopCount, rounds, bitsPerRound int, startIndexOf map[ir.Value]int, linkage ir.Linkage, src *rng.Source) (*Descriptor, error) {
	n := len(objects)
	if n == 0 {
		return nil, fmt.Errorf("pagetable: %s: empty object set", prefix)
	}
	for _, o := range objects {
		if _, ok := keys[o]; !ok {
			return nil, fmt.Errorf("pagetable: %s: object missing key", prefix)
		}
	}

	shuffled := append([]ir.Value{}, objects...)
	src.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	indexOf := make(map[ir.Value]int, n)
	for i, o := range shuffled {
		indexOf[o] = i
	}
	if startIndexOf != nil {
		// Objects without a recorded per-function starting index fall back
		// to the module-level map, per spec.md §4.C "Enhancement".
		for _, o := range objects {
			if _, ok := startIndexOf[o]; !ok {
				startIndexOf[o] = indexOf[o]
			}
		}
		for o, i := range startIndexOf {
			indexOf[o] = i
		}
	}

	ptrElems := make([]ir.Value, n)
	for i, o := range shuffled {
		ptrElems[i] = o
	}
	objectsGlobal := m.NewGlobal(prefix+"_objects", ir.TypePtr, &ir.ConstPointerArray{Elems: ptrElems})
	objectsGlobal.NoObf = true
	objectsGlobal.Linkage = linkage
	m.CompilerUsed.Append(objectsGlobal)

	desc := &Descriptor{
		Objects:       shuffled,
		IndexOf:       make(map[ir.Value]int, n),
		Keys:          keys,
		ObjectsGlobal: objectsGlobal,
		Rounds:        rounds,
		BitsPerRound:  bitsPerRound,
	}
	for o, i := range indexOf {
		desc.IndexOf[o] = i
	}

	for it := 0; it < loopCount; it++ {
		reshuffled := append([]ir.Value{}, objects...)
		src.Shuffle(n, func(i, j int) { reshuffled[i], reshuffled[j] = reshuffled[j], reshuffled[i] })

		table := make([]uint32, n)
		newIndexOf := make(map[ir.Value]int, n)
		for j, o := range reshuffled {
			key := keys[o]
			pre := uint32(desc.IndexOf[o])
			table[j] = MaskCipherEncode(pre, key.High, key.Low, uint32(j), rounds, bitsPerRound)
			newIndexOf[o] = j
		}
		desc.IndexOf = newIndexOf

		page := m.NewGlobal(fmt.Sprintf("%s_page_table_%d", prefix, it), ir.IntType(32), &ir.ConstIntArray{Elems: table})
		page.NoObf = true
		page.Linkage = linkage
		m.CompilerUsed.Append(page)
		desc.Pages = append(desc.Pages, page)
		desc.pageValues = append(desc.pageValues, table)
	}

	return desc, nil
}

// IndexMapIsBijection reports whether desc.IndexOf is a bijection onto
// [0, N) — spec.md §8 invariant 3, exposed for tests and for callers that
// want a cheap sanity check after building a table.
func (d *Descriptor) IndexMapIsBijection() bool {
	n := len(d.Objects)
	seen := make([]bool, n)
	for _, idx := range d.IndexOf {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return len(d.IndexOf) == n
}
