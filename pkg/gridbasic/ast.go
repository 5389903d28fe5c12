package gridbasic

// The AST is built once per Load and never mutated afterwards. Expression and
// Statement are sealed sum types: every variant embeds pos and implements a
// private marker method, and every consumer dispatches with an exhaustive
// type switch.

type pos struct {
	Line int
	Col  int
}

func (p pos) Pos() (int, int) { return p.Line, p.Col }

// Expr is one expression node.
type Expr interface {
	Pos() (line, col int)
	exprNode()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	pos
	Value int16
}

// StringLit is a string literal; legal only as the operand of an output
// statement, which the parser enforces.
type StringLit struct {
	pos
	Value string
}

// VarRef reads a variable. Name is 'A'..'Z' or one of the system variable
// symbols.
type VarRef struct {
	pos
	Name byte
}

// UnaryExpr is negation or logical not.
type UnaryExpr struct {
	pos
	Op TokenKind // TokenMinus or TokenBang
	X  Expr
}

// BinaryExpr covers arithmetic, comparison and logical operators. All
// comparisons evaluate to exactly 1 or 0.
type BinaryExpr struct {
	pos
	Op   TokenKind
	X, Y Expr
}

// PeekExpr reads the memory space: @(i) array read, @(-1) stack pop. Stack
// is a parse-time fact: only the literal -1 selects stack semantics, never a
// variable that happens to hold -1.
type PeekExpr struct {
	pos
	Stack bool
	Index Expr // nil when Stack
}

// GridReadExpr reads one grid cell: @(x, y).
type GridReadExpr struct {
	pos
	X, Y Expr
}

// CASExpr is the grid compare-and-swap: @(x, y, expected, new). Evaluates to
// 1 when the cell held expected and was replaced, 0 otherwise.
type CASExpr struct {
	pos
	X, Y     Expr
	Expected Expr
	New      Expr
}

func (*NumberLit) exprNode()    {}
func (*StringLit) exprNode()    {}
func (*VarRef) exprNode()       {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}
func (*PeekExpr) exprNode()     {}
func (*GridReadExpr) exprNode() {}
func (*CASExpr) exprNode()      {}

// Stmt is one statement node.
type Stmt interface {
	Pos() (line, col int)
	stmtNode()
}

// LetStmt assigns a variable: V = expr.
type LetStmt struct {
	pos
	Name  byte
	Value Expr
}

// PrintStmt emits one value: ? expr or ? "text".
type PrintStmt struct {
	pos
	Value Expr
}

// NewlineStmt emits a line break: /.
type NewlineStmt struct {
	pos
}

// PokeStmt writes the memory space: @(i) = expr, or @(-1) = expr for a stack
// push. Stack carries the same parse-time literal -1 distinction as PeekExpr.
type PokeStmt struct {
	pos
	Stack bool
	Index Expr // nil when Stack
	Value Expr
}

// GridWriteStmt writes one grid cell: @(x, y) = expr.
type GridWriteStmt struct {
	pos
	X, Y  Expr
	Value Expr
}

// GotoStmt jumps to a label.
type GotoStmt struct {
	pos
	Label string
}

// GosubStmt calls a label, pushing the statement after the call as the
// return address.
type GosubStmt struct {
	pos
	Label string
}

// ReturnStmt pops the return-address stack. With an empty stack it is a
// runtime error, not a no-op.
type ReturnStmt struct {
	pos
}

// HaltStmt terminates the program immediately.
type HaltStmt struct {
	pos
}

// ElseIfClause is one ELSEIF arm of an IfStmt.
type ElseIfClause struct {
	Cond Expr
	Body []Stmt
}

// IfStmt covers both the inline and the block form; the parser unifies them
// into this one shape.
type IfStmt struct {
	pos
	Cond    Expr
	Then    []Stmt
	ElseIfs []ElseIfClause
	Else    []Stmt // nil when absent
}

// ForStmt is FOR V = start TO end [STEP step] ... NEXT. Step defaults to a
// literal 1.
type ForStmt struct {
	pos
	Var   byte
	Start Expr
	End   Expr
	Step  Expr
	Body  []Stmt
}

// WhileStmt is WHILE cond ... NEXT.
type WhileStmt struct {
	pos
	Cond Expr
	Body []Stmt
}

func (*LetStmt) stmtNode()       {}
func (*PrintStmt) stmtNode()     {}
func (*NewlineStmt) stmtNode()   {}
func (*PokeStmt) stmtNode()      {}
func (*GridWriteStmt) stmtNode() {}
func (*GotoStmt) stmtNode()      {}
func (*GosubStmt) stmtNode()     {}
func (*ReturnStmt) stmtNode()    {}
func (*HaltStmt) stmtNode()      {}
func (*IfStmt) stmtNode()        {}
func (*ForStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()     {}

// Line is one top-level program line. Lines consumed into block bodies do
// not appear here; their statements live inside the owning block node.
type Line struct {
	Number int // 1-based physical source line
	Label  string
	Stmts  []Stmt
}

// Program is the parsed, immutable AST plus the resolved label table.
type Program struct {
	Lines  []*Line
	Labels map[string]int // label name (lowercase) -> source line number
	byLine map[int]int    // source line number -> index into Lines
}

// LineIndex maps a source line number to its position in Lines. The second
// result is false for numbers that are not top-level lines.
func (p *Program) LineIndex(lineNo int) (int, bool) {
	idx, ok := p.byLine[lineNo]
	return idx, ok
}
