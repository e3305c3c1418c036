package ir

import "fmt"

// GlobalVariable is a module-level storage location. NoObf mirrors the
// `noobf` metadata marker of spec.md §3: once set, no later pass may treat
// this global as a candidate object.
type GlobalVariable struct {
	Name        string
	Typ         Type
	Linkage     Linkage
	ThreadLocal bool
	DLLImport   bool
	NoObf       bool
	Init        Value
}

func (g *GlobalVariable) ValueType() Type { return TypePtr }
func (*GlobalVariable) valueMarker()      {}

// CompilerUsedSet is the append-only ledger that doFinalization writes
// generated globals into so that linker dead-stripping never removes them
// (spec.md §4.E "doFinalization", §6 "Persisted IR artifacts"). Promoted to
// a first-class type per SPEC_FULL.md's supplemented-features section.
type CompilerUsedSet struct {
	names map[string]bool
	order []string
}

func NewCompilerUsedSet() *CompilerUsedSet {
	return &CompilerUsedSet{names: make(map[string]bool)}
}

// Append records g exactly once, preserving insertion order.
func (s *CompilerUsedSet) Append(g *GlobalVariable) {
	if s.names[g.Name] {
		return
	}
	s.names[g.Name] = true
	s.order = append(s.order, g.Name)
}

func (s *CompilerUsedSet) Contains(name string) bool { return s.names[name] }

func (s *CompilerUsedSet) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Module is the top-level container: functions, globals, and the shared
// compiler-used ledger.
type Module struct {
	Name         string
	Functions    []*Function
	Globals      []*GlobalVariable
	CompilerUsed *CompilerUsedSet

	// RTTIContext holds the RTTI name scrambler's reverse-lookup state once
	// that pass has run, typed as interface{} here so internal/ir (which
	// every pass, including internal/rttiscrambler, depends on) never needs
	// to import a higher-level package.
	RTTIContext interface{}

	globalSeq int
}

func NewModule(name string) *Module {
	return &Module{Name: name, CompilerUsed: NewCompilerUsedSet()}
}

// NewGlobal allocates and registers a new global named `<prefix>_<n>`,
// where n is a module-wide counter. Page-table globals therefore get names
// such as `M_IndirectCall_page_table_0_3`: the prefixes are the literal
// `M_`/`MF_`, and neither the module name nor the function name appears.
func (m *Module) NewGlobal(prefix string, typ Type, init Value) *GlobalVariable {
	name := fmt.Sprintf("%s_%d", prefix, m.globalSeq)
	m.globalSeq++
	g := &GlobalVariable{Name: name, Typ: typ, Linkage: LinkagePrivate, Init: init}
	m.Globals = append(m.Globals, g)
	return g
}

// AddFunction registers f with the module.
func (m *Module) AddFunction(f *Function) { m.Functions = append(m.Functions, f) }
