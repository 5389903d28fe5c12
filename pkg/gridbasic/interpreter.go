package gridbasic

import (
	"math/rand"
	"strconv"
)

// Host is the effect boundary injected at construction. Every external
// effect is a synchronous callback: there is no blocking I/O inside the
// engine, and ReadInputCode must return 0 rather than block when nothing is
// pending, preserving the one-statement-per-resumption contract.
type Host interface {
	ReadCell(index int) int16
	WriteCell(index int, value int16)
	Push(value int16)
	Pop() int16
	GridRead(x, y int) int16
	GridWrite(x, y int, value int16)
	GridCAS(x, y int, expected, value int16) bool
	EmitOutput(text string)
	ReadInputCode() int16
}

// MemoryHost is the default Host: a private Space plus a Grid that may be
// shared between workers. Output and Input are optional; a nil Output
// discards, a nil Input always reports no key pending.
type MemoryHost struct {
	Space  *Space
	Grid   *Grid
	Output func(text string)
	Input  func() int16
}

// NewMemoryHost builds a host with default-sized regions.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{
		Space: NewSpace(DefaultSpaceSize),
		Grid:  NewGrid(DefaultGridWidth, DefaultGridHeight),
	}
}

func (h *MemoryHost) ReadCell(index int) int16         { return h.Space.ReadArray(index) }
func (h *MemoryHost) WriteCell(index int, value int16) { h.Space.WriteArray(index, value) }
func (h *MemoryHost) Push(value int16)                 { h.Space.Push(value) }
func (h *MemoryHost) Pop() int16                       { return h.Space.Pop() }
func (h *MemoryHost) GridRead(x, y int) int16          { return h.Grid.Read(x, y) }
func (h *MemoryHost) GridWrite(x, y int, value int16)  { h.Grid.Write(x, y, value) }
func (h *MemoryHost) GridCAS(x, y int, expected, value int16) bool {
	return h.Grid.CompareAndSwap(x, y, expected, value)
}

func (h *MemoryHost) EmitOutput(text string) {
	if h.Output != nil {
		h.Output(text)
	}
}

func (h *MemoryHost) ReadInputCode() int16 {
	if h.Input != nil {
		return h.Input()
	}
	return 0
}

// State is the outcome of one Step.
type State int

const (
	// StateSuspended means one statement ran and the engine returned
	// control at its suspension point.
	StateSuspended State = iota
	// StateHalted means the program ended (HALT or ran off the end).
	StateHalted
	// StateFaulted means a runtime error froze execution; the program
	// stays loaded for inspection.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateHalted:
		return "halted"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

type frameKind int

const (
	frameBlock frameKind = iota // IF arm body: runs once, then pops
	frameFor
	frameWhile
)

// frame is one level of the explicit execution cursor. Suspending and
// resuming inside arbitrarily nested block bodies is a data structure here,
// not an implicit call stack: the frame slice plus the per-frame index is
// the whole position.
type frame struct {
	kind frameKind
	body []Stmt
	idx  int
	line int // source line of the statement that opened the frame

	// FOR bookkeeping; end and step are evaluated once at loop entry.
	forVar  byte
	forEnd  int16
	forStep int16

	// WHILE re-evaluates its condition at every loop bottom.
	whileCond Expr
}

// retAddr is one GOSUB return address: the full cursor position after the
// call, including the nested-frame stack, so a RETURN from a subroutine
// re-enters the loop or block the call was made from.
type retAddr struct {
	lineIdx    int
	stmtIdx    int
	frames     []frame
	callerLine int
}

// Interpreter is one cooperatively stepped execution engine. All mutable
// state lives on the instance; independent instances only meet at the Host's
// grid, so a multi-worker host runs many of them safely.
type Interpreter struct {
	prog *Program
	host Host

	vars    [26]int16
	gosub   []retAddr
	frames  []frame
	lineIdx int
	stmtIdx int

	curLine int // source line of the statement being executed
	halted  bool
	rng     *rand.Rand
	gridX   int16
	gridY   int16
}

// New builds an engine around the given host. A nil host gets a private
// MemoryHost.
func New(host Host) *Interpreter {
	if host == nil {
		host = NewMemoryHost()
	}
	return &Interpreter{
		host: host,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// SetRandomSeed makes the '\'' system variable deterministic, for tests and
// replayable runs.
func (it *Interpreter) SetRandomSeed(seed int64) {
	it.rng = rand.New(rand.NewSource(seed))
}

// SetGridPosition sets the worker's own coordinates, readable in scripts as
// % and ~.
func (it *Interpreter) SetGridPosition(x, y int16) {
	it.gridX, it.gridY = x, y
}

// Load parses source and replaces the current program, resetting all
// execution state. A failed parse leaves no program executable.
func (it *Interpreter) Load(source string) error {
	prog, err := Parse(source)
	if err != nil {
		it.prog = nil
		it.halted = true
		return err
	}
	it.prog = prog
	it.Reset()
	return nil
}

// Reset rewinds execution to the top of the loaded program. Variable
// bindings and the call stack are discarded; the host's memory regions are
// untouched.
func (it *Interpreter) Reset() {
	it.vars = [26]int16{}
	it.gosub = it.gosub[:0]
	it.frames = it.frames[:0]
	it.lineIdx = 0
	it.stmtIdx = 0
	it.curLine = 0
	it.halted = it.prog == nil
}

// Halted reports whether the program has terminated.
func (it *Interpreter) Halted() bool { return it.halted }

// CurrentLine is the source line of the most recently executed statement.
func (it *Interpreter) CurrentLine() int { return it.curLine }

// Depth is the GOSUB nesting depth, the quantity step-over and step-out are
// defined against.
func (it *Interpreter) Depth() int { return len(it.gosub) }

// CallStack returns the caller line of every pending GOSUB, innermost last.
func (it *Interpreter) CallStack() []int {
	lines := make([]int, len(it.gosub))
	for i, r := range it.gosub {
		lines[i] = r.callerLine
	}
	return lines
}

// Variables returns a read-only snapshot of the 26 letter variables.
func (it *Interpreter) Variables() map[string]int16 {
	snap := make(map[string]int16, 26)
	for i, v := range it.vars {
		snap[string(rune('A'+i))] = v
	}
	return snap
}

// NextLine is the source line of the statement the next Step would execute,
// or 0 when the program is done. A loop frame at its continuation check
// reports the loop statement's own line, since the body's first line may
// never execute again. The debug controller consults this for breakpoints
// before letting the step happen.
func (it *Interpreter) NextLine() int {
	for i := len(it.frames) - 1; i >= 0; i-- {
		f := &it.frames[i]
		if f.idx < len(f.body) {
			line, _ := f.body[f.idx].Pos()
			return line
		}
		if f.kind != frameBlock {
			return f.line
		}
	}
	if it.prog == nil {
		return 0
	}
	li, si := it.lineIdx, it.stmtIdx
	for li < len(it.prog.Lines) {
		line := it.prog.Lines[li]
		if si < len(line.Stmts) {
			l, _ := line.Stmts[si].Pos()
			return l
		}
		li++
		si = 0
	}
	return 0
}

// AtLineStart reports whether the next statement to execute is the first one
// on its source line. Every jump lands on a line start, and a fresh line in
// straight-line order is one too; later statements of the same line, and
// loop-bottom continuation checks, are not. Breakpoints key off these
// positions: each arrival at a line is a line start, so a line that jumps
// back to itself arrives again.
func (it *Interpreter) AtLineStart() bool {
	for i := len(it.frames) - 1; i >= 0; i-- {
		f := &it.frames[i]
		if f.idx < len(f.body) {
			cur, _ := f.body[f.idx].Pos()
			if f.idx == 0 {
				// The body may open on the frame's own line (inline form)
				// or on a later one (block form).
				return cur != f.line
			}
			prev, _ := f.body[f.idx-1].Pos()
			return cur != prev
		}
		if f.kind != frameBlock {
			return false
		}
	}
	if it.prog == nil {
		return false
	}
	li, si := it.lineIdx, it.stmtIdx
	for li < len(it.prog.Lines) {
		line := it.prog.Lines[li]
		if si < len(line.Stmts) {
			return si == 0
		}
		li++
		si = 0
	}
	return false
}

// Step advances exactly one statement (or one loop-continuation check) and
// returns control. This is the engine's sole concurrency primitive: the
// boundaries between statements are the only suspension points.
func (it *Interpreter) Step() (State, error) {
	if it.prog == nil {
		return StateFaulted, NewRuntimeError("NO_PROGRAM", 0)
	}
	if it.halted {
		return StateHalted, nil
	}

	for {
		if n := len(it.frames); n > 0 {
			f := &it.frames[n-1]
			if f.idx < len(f.body) {
				st := f.body[f.idx]
				return it.exec(st)
			}
			switch f.kind {
			case frameBlock:
				// An IF arm finishing costs nothing observable.
				it.frames = it.frames[:n-1]
				continue
			case frameFor:
				v := it.vars[f.forVar-'A'] + f.forStep
				it.vars[f.forVar-'A'] = v
				if forContinues(v, f.forEnd, f.forStep) {
					f.idx = 0
				} else {
					it.frames = it.frames[:n-1]
				}
				// Each loop iteration boundary is itself a suspension
				// point.
				return StateSuspended, nil
			case frameWhile:
				v, err := it.eval(f.whileCond)
				if err != nil {
					return it.fault(err)
				}
				if v != 0 {
					f.idx = 0
				} else {
					it.frames = it.frames[:n-1]
				}
				return StateSuspended, nil
			}
		}

		line, ok := it.currentTopLevelLine()
		if !ok {
			it.halted = true
			return StateHalted, nil
		}
		st := line.Stmts[it.stmtIdx]
		return it.exec(st)
	}
}

// currentTopLevelLine normalizes the top-level cursor past empty lines and
// line ends, reporting false at end of program.
func (it *Interpreter) currentTopLevelLine() (*Line, bool) {
	for it.lineIdx < len(it.prog.Lines) {
		line := it.prog.Lines[it.lineIdx]
		if it.stmtIdx < len(line.Stmts) {
			return line, true
		}
		it.lineIdx++
		it.stmtIdx = 0
	}
	return nil, false
}

// advance moves the cursor past the statement just executed.
func (it *Interpreter) advance() {
	if n := len(it.frames); n > 0 {
		it.frames[n-1].idx++
		return
	}
	it.stmtIdx++
}

func (it *Interpreter) fault(err error) (State, error) {
	if se, ok := err.(*ScriptError); ok && se.Line == 0 {
		se.Line = it.curLine
	}
	return StateFaulted, err
}

// exec dispatches one statement. Pure structural match over the node type;
// every variant advances the cursor or redirects it, and nothing else
// touches execution position.
func (it *Interpreter) exec(st Stmt) (State, error) {
	it.curLine, _ = st.Pos()

	switch s := st.(type) {
	case *LetStmt:
		v, err := it.eval(s.Value)
		if err != nil {
			return it.fault(err)
		}
		it.vars[s.Name-'A'] = v
		it.advance()

	case *PrintStmt:
		if lit, ok := s.Value.(*StringLit); ok {
			it.host.EmitOutput(lit.Value)
		} else {
			v, err := it.eval(s.Value)
			if err != nil {
				return it.fault(err)
			}
			it.host.EmitOutput(strconv.Itoa(int(v)))
		}
		it.advance()

	case *NewlineStmt:
		it.host.EmitOutput("\n")
		it.advance()

	case *PokeStmt:
		v, err := it.eval(s.Value)
		if err != nil {
			return it.fault(err)
		}
		if s.Stack {
			it.host.Push(v)
		} else {
			idx, err := it.eval(s.Index)
			if err != nil {
				return it.fault(err)
			}
			it.host.WriteCell(int(idx), v)
		}
		it.advance()

	case *GridWriteStmt:
		x, err := it.eval(s.X)
		if err != nil {
			return it.fault(err)
		}
		y, err := it.eval(s.Y)
		if err != nil {
			return it.fault(err)
		}
		v, err := it.eval(s.Value)
		if err != nil {
			return it.fault(err)
		}
		it.host.GridWrite(int(x), int(y), v)
		it.advance()

	case *GotoStmt:
		if err := it.jump(s.Label); err != nil {
			return it.fault(err)
		}

	case *GosubStmt:
		ret := retAddr{
			lineIdx:    it.lineIdx,
			stmtIdx:    it.stmtIdx,
			frames:     cloneFrames(it.frames),
			callerLine: it.curLine,
		}
		// The return address is the statement immediately after the call.
		if n := len(ret.frames); n > 0 {
			ret.frames[n-1].idx++
		} else {
			ret.stmtIdx++
		}
		if err := it.jump(s.Label); err != nil {
			return it.fault(err)
		}
		it.gosub = append(it.gosub, ret)

	case *ReturnStmt:
		n := len(it.gosub)
		if n == 0 {
			return it.fault(NewRuntimeError("RETURN_WITHOUT_GOSUB", it.curLine))
		}
		ret := it.gosub[n-1]
		it.gosub = it.gosub[:n-1]
		it.lineIdx = ret.lineIdx
		it.stmtIdx = ret.stmtIdx
		it.frames = ret.frames

	case *HaltStmt:
		it.halted = true
		return StateHalted, nil

	case *IfStmt:
		body, err := it.selectIfArm(s)
		if err != nil {
			return it.fault(err)
		}
		it.advance()
		if len(body) > 0 {
			it.frames = append(it.frames, frame{kind: frameBlock, body: body, line: it.curLine})
		}

	case *ForStmt:
		start, err := it.eval(s.Start)
		if err != nil {
			return it.fault(err)
		}
		end, err := it.eval(s.End)
		if err != nil {
			return it.fault(err)
		}
		step, err := it.eval(s.Step)
		if err != nil {
			return it.fault(err)
		}
		it.vars[s.Var-'A'] = start
		it.advance()
		if forContinues(start, end, step) {
			it.frames = append(it.frames, frame{
				kind: frameFor, body: s.Body, line: it.curLine,
				forVar: s.Var, forEnd: end, forStep: step,
			})
		}

	case *WhileStmt:
		v, err := it.eval(s.Cond)
		if err != nil {
			return it.fault(err)
		}
		it.advance()
		if v != 0 {
			it.frames = append(it.frames, frame{kind: frameWhile, body: s.Body, line: it.curLine, whileCond: s.Cond})
		}

	default:
		return it.fault(NewRuntimeError("NO_PROGRAM", it.curLine).withDetail("unhandled statement"))
	}

	return StateSuspended, nil
}

// selectIfArm picks at most one body: then, the first matching else-if, or
// else. Evaluation stops at the first non-zero condition, so exactly one arm
// (or none) ever runs per evaluation.
func (it *Interpreter) selectIfArm(s *IfStmt) ([]Stmt, error) {
	v, err := it.eval(s.Cond)
	if err != nil {
		return nil, err
	}
	if v != 0 {
		return s.Then, nil
	}
	for _, arm := range s.ElseIfs {
		v, err := it.eval(arm.Cond)
		if err != nil {
			return nil, err
		}
		if v != 0 {
			return arm.Body, nil
		}
	}
	return s.Else, nil
}

// jump redirects the cursor to a label's line, unwinding every block frame.
// Jumping out of a loop therefore discards the loop's bookkeeping entirely;
// there is no line-range tracking to go stale.
func (it *Interpreter) jump(label string) error {
	lineNo, ok := it.prog.Labels[label]
	if !ok {
		// Validated at parse time; fail loudly if it happens anyway.
		return NewRuntimeError("UNDEFINED_LABEL", it.curLine).withDetail(label)
	}
	idx, ok := it.prog.LineIndex(lineNo)
	if !ok {
		return NewRuntimeError("UNDEFINED_LABEL", it.curLine).withDetail(label)
	}
	it.lineIdx = idx
	it.stmtIdx = 0
	it.frames = it.frames[:0]
	return nil
}

func forContinues(v, end, step int16) bool {
	if step > 0 {
		return v <= end
	}
	return v >= end
}

func cloneFrames(frames []frame) []frame {
	if len(frames) == 0 {
		return nil
	}
	out := make([]frame, len(frames))
	copy(out, frames)
	return out
}
