package codegen

// ScopeKind tells whether labels resolve against a module or a function.
type ScopeKind int

const (
	ModuleScope ScopeKind = iota
	FunctionScope
)

// Scope is the namespace bare Label/Goto/IfGoto names are qualified with.
type Scope struct {
	Kind ScopeKind
	Name string // module name or qualified function name
}

// Symbol returns the assembly symbol for a VM label inside s.
func (s Scope) Symbol(label string) string {
	return s.Name + "$" + label
}

// Routine identifies a shared subroutine the optimizer emits once per program.
type Routine int

const (
	RoutineEq Routine = iota
	RoutineGt
	RoutineLt
	RoutineCall
	RoutineReturn
	numRoutines
)

var routineLabels = [numRoutines]string{
	RoutineEq:     "GLOBAL_EQ",
	RoutineGt:     "GLOBAL_GT",
	RoutineLt:     "GLOBAL_LT",
	RoutineCall:   "GLOBAL_CALL",
	RoutineReturn: "GLOBAL_RETURN",
}

// Label is the global assembly label of the routine's entry point.
func (r Routine) Label() string {
	return routineLabels[r]
}

// State is all mutable context code generation depends on. It is passed
// explicitly so independent translation runs never share counters, and it is
// a plain value: copying it takes a snapshot the driver can roll back to.
type State struct {
	Module string
	Scope  Scope

	// Labels numbers comparison and loop labels; reset per module.
	Labels int
	// Calls numbers call return addresses; global for the whole program.
	Calls int
	// Emitted records which shared routines already exist in the output.
	Emitted [numRoutines]bool
}

func NewState() *State {
	return &State{}
}

// EnterModule resets the per-module counters and scopes labels to name.
func (s *State) EnterModule(name string) {
	s.Module = name
	s.Scope = Scope{Kind: ModuleScope, Name: name}
	s.Labels = 0
}

// EnterFunction scopes labels to the qualified function name.
func (s *State) EnterFunction(name string) {
	s.Scope = Scope{Kind: FunctionScope, Name: name}
}

// InFunction reports whether a Function command has been seen in the current module.
func (s *State) InFunction() bool {
	return s.Scope.Kind == FunctionScope
}

func (s *State) nextLabel() int {
	n := s.Labels
	s.Labels++
	return n
}

func (s *State) nextCall() int {
	n := s.Calls
	s.Calls++
	return n
}

// firstUse reports whether r has not been emitted yet and marks it emitted.
func (s *State) firstUse(r Routine) bool {
	if s.Emitted[r] {
		return false
	}
	s.Emitted[r] = true
	return true
}
