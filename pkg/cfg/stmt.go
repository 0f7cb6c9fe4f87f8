package cfg

// Function is the lowered target handed to Build.
type Function struct {
	Name   string
	Title  string
	Span   Span
	Header Span
	Body   Block
}

// Span is a half-open byte range in the analyzed source.
type Span struct {
	Start int
	End   int
}

// Valid reports whether the span covers any source.
func (s Span) Valid() bool { return s.End > s.Start }

// Stmt is one lowered statement. The concrete types below form a closed set;
// the builder dispatches on them with a type switch.
type Stmt interface {
	Pos() Span
	stmt()
}

// Block is an ordered statement list.
type Block []Stmt

// Simple is any statement drawn as a single rectangle.
type Simple struct {
	Span
	Text string
	Kind NodeKind
}

// Branch is one condition of an if/elif chain.
type Branch struct {
	Span
	Cond string
	Body Block
}

// If is an if / elif / else chain.
type If struct {
	Span
	Branches []Branch
	Else     Block
}

// While is a pre-tested loop. Else holds Python's while-else block.
type While struct {
	Span
	Header string
	Body   Block
	Else   Block
	Label  string
}

// ForEach iterates a collection (Python for, for-of, for-in, async for).
type ForEach struct {
	Span
	Header string
	Body   Block
	Else   Block
	Async  bool
	Label  string
}

// Clause is an optional piece of a C-style for header.
type Clause struct {
	Span
	Text string
}

// For is a C-style three-part loop.
type For struct {
	Span
	Init   Clause
	Cond   Clause
	Update Clause
	Body   Block
	Label  string
}

// DoWhile runs its body before testing Cond.
type DoWhile struct {
	Span
	Cond     string
	CondSpan Span
	Body     Block
	Label    string
}

// Handler is an except/catch clause.
type Handler struct {
	Span
	Header    string
	Exception string
	Body      Block
}

// Try is try/except/else/finally (or try/catch/finally).
type Try struct {
	Span
	Body        Block
	Handlers    []Handler
	Else        Block
	Finally     Block
	HasFinally  bool
	FinallySpan Span
}

// Return leaves the function. Implicit marks the expression body of a
// lambda or arrow function.
type Return struct {
	Span
	Text     string
	Implicit bool
}

// Raise is raise/throw.
type Raise struct {
	Span
	Text string
}

// Break leaves the innermost loop or switch.
type Break struct {
	Span
	Text string
	// Label names the enclosing labeled loop or switch to leave.
	Label string
}

// Continue resumes the innermost loop.
type Continue struct {
	Span
	Text  string
	Label string
}

// Case is one arm of a switch or match.
type Case struct {
	Span
	Guard   string
	Default bool
	Body    Block
}

// Switch is a switch statement or Python match. Breakable is set when
// break leaves the switch rather than the enclosing loop.
type Switch struct {
	Span
	Subject   string
	Cases     []Case
	Breakable bool
	Label     string
}

// Ternary is a conditional expression used as a statement, an assignment
// value or a returned value. Prefix is prepended to both branch labels
// ("x = ", "return ").
type Ternary struct {
	Span
	Prefix string
	Cond   string
	Then   string
	Else   string
	Return bool
}

// Assert is Python's assert statement.
type Assert struct {
	Span
	Text string
	Cond string
}

// With is a context-manager block.
type With struct {
	Span
	Header string
	Body   Block
	Async  bool
}

// HOFOp names a recognized higher-order operation.
type HOFOp string

const (
	OpMap     HOFOp = "map"
	OpFilter  HOFOp = "filter"
	OpReduce  HOFOp = "reduce"
	OpForEach HOFOp = "forEach"
	OpFlatMap HOFOp = "flatMap"
	OpSome    HOFOp = "some"
	OpEvery   HOFOp = "every"
	OpFind    HOFOp = "find"
)

// Callback is the function argument of a higher-order call. Either Body is
// the lowered function body, or Named holds the callee of a function passed
// by reference.
type Callback struct {
	Span
	Params string
	Body   Block
	Named  string
}

// HOFStage is one higher-order call of a chain.
type HOFStage struct {
	Span
	Op       HOFOp
	Callback Callback
	Initial  string
}

// HOFCall is a statement whose value is one or more chained higher-order
// calls over Source.
type HOFCall struct {
	Span
	Text       string
	Source     string
	SourceSpan Span
	Stages     []HOFStage
	Target     string
	Return     bool
}

// PromiseOp names a promise continuation.
type PromiseOp string

const (
	OpThen    PromiseOp = "then"
	OpCatch   PromiseOp = "catch"
	OpFinally PromiseOp = "finally"
)

// PromiseStep is one continuation of a promise chain.
type PromiseStep struct {
	Span
	Op         PromiseOp
	OnSettled  *Callback
	OnRejected *Callback
}

// PromiseChain is a statement built around source.then(...).catch(...).
type PromiseChain struct {
	Span
	Text       string
	Source     string
	SourceSpan Span
	Steps      []PromiseStep
	Target     string
	Await      bool
	Return     bool
}

func (s Span) Pos() Span { return s }

func (*Simple) stmt()       {}
func (*If) stmt()           {}
func (*While) stmt()        {}
func (*ForEach) stmt()      {}
func (*For) stmt()          {}
func (*DoWhile) stmt()      {}
func (*Try) stmt()          {}
func (*Return) stmt()       {}
func (*Raise) stmt()        {}
func (*Break) stmt()        {}
func (*Continue) stmt()     {}
func (*Switch) stmt()       {}
func (*Ternary) stmt()      {}
func (*Assert) stmt()       {}
func (*With) stmt()         {}
func (*HOFCall) stmt()      {}
func (*PromiseChain) stmt() {}
