package gridbasic

// Mode is the debug controller's state machine: run, break, and the three
// step granularities. There is no terminal mode; the controller simply stops
// mattering once the engine halts.
type Mode int

const (
	ModeRun Mode = iota
	ModeBreak
	ModeStepIn
	ModeStepOver
	ModeStepOut
)

func (m Mode) String() string {
	switch m {
	case ModeRun:
		return "run"
	case ModeBreak:
		return "break"
	case ModeStepIn:
		return "step-in"
	case ModeStepOver:
		return "step-over"
	case ModeStepOut:
		return "step-out"
	}
	return "unknown"
}

// Debugger layers breakpoints and step modes on top of the engine's natural
// suspension points. It adds no execution semantics of its own: at each
// suspension it only decides whether to hand control back to the host or let
// the engine continue.
type Debugger struct {
	it          *Interpreter
	mode        Mode
	breaks      map[int]struct{}
	targetDepth int

	// skipBreak suppresses the breakpoint that just fired until one
	// statement has executed, so Continue moves past the line instead of
	// re-breaking on the spot.
	skipBreak bool
}

// NewDebugger wraps an engine. Initial mode is run.
func NewDebugger(it *Interpreter) *Debugger {
	return &Debugger{it: it, breaks: make(map[int]struct{})}
}

// Interpreter exposes the wrapped engine for snapshot queries.
func (d *Debugger) Interpreter() *Interpreter { return d.it }

// Mode returns the current controller mode.
func (d *Debugger) Mode() Mode { return d.mode }

// SetBreakpoint arms a source line: execution breaks before that line's
// next statement runs.
func (d *Debugger) SetBreakpoint(line int) { d.breaks[line] = struct{}{} }

// RemoveBreakpoint disarms one line.
func (d *Debugger) RemoveBreakpoint(line int) { delete(d.breaks, line) }

// ClearBreakpoints disarms everything.
func (d *Debugger) ClearBreakpoints() { d.breaks = make(map[int]struct{}) }

// Breakpoints lists armed lines in no particular order.
func (d *Debugger) Breakpoints() []int {
	lines := make([]int, 0, len(d.breaks))
	for line := range d.breaks {
		lines = append(lines, line)
	}
	return lines
}

// Continue switches to free running until the next breakpoint line.
func (d *Debugger) Continue() { d.mode = ModeRun }

// Pause holds execution at the current suspension point without touching
// breakpoints.
func (d *Debugger) Pause() { d.mode = ModeBreak }

// Restart re-arms the controller after the engine was reloaded or reset:
// paused, with any pending breakpoint suppression cleared, so a breakpoint
// on the very first line fires again.
func (d *Debugger) Restart() {
	d.mode = ModeBreak
	d.skipBreak = false
}

// StepIn suspends after exactly one more statement, regardless of call
// depth.
func (d *Debugger) StepIn() { d.mode = ModeStepIn }

// StepOver records the current return-stack depth and suspends once a
// statement has executed at that depth or shallower, treating any GOSUB in
// between as a single unit.
func (d *Debugger) StepOver() {
	d.mode = ModeStepOver
	d.targetDepth = d.it.Depth()
}

// StepOut suspends only once the depth drops strictly below the recorded
// one, i.e. after the enclosing RETURN has fired.
func (d *Debugger) StepOut() {
	d.mode = ModeStepOut
	d.targetDepth = d.it.Depth()
}

// Paused reports whether the controller is holding execution.
func (d *Debugger) Paused() bool { return d.mode == ModeBreak }

// Run drives the engine for at most budget statements, stopping early on
// break, halt or fault. It returns the engine state after the last step
// taken. A budget of statements per call is how hosts keep many workers
// cooperatively multiplexed.
func (d *Debugger) Run(budget int) (State, error) {
	if d.mode == ModeBreak {
		return StateSuspended, nil
	}
	state := StateSuspended
	for n := 0; n < budget; n++ {
		// A breakpoint fires on every arrival at its line, including a
		// jump from the line back to itself. Line starts are the arrival
		// points; skipBreak covers the one re-check before Continue has
		// moved anywhere.
		if d.mode == ModeRun && !d.skipBreak && d.it.AtLineStart() {
			if _, armed := d.breaks[d.it.NextLine()]; armed {
				d.mode = ModeBreak
				d.skipBreak = true
				return StateSuspended, nil
			}
		}

		var err error
		state, err = d.it.Step()
		d.skipBreak = false
		if err != nil || state != StateSuspended {
			return state, err
		}

		switch d.mode {
		case ModeStepIn:
			d.mode = ModeBreak
			return StateSuspended, nil
		case ModeStepOver:
			if d.it.Depth() <= d.targetDepth {
				d.mode = ModeBreak
				return StateSuspended, nil
			}
		case ModeStepOut:
			if d.it.Depth() < d.targetDepth {
				d.mode = ModeBreak
				return StateSuspended, nil
			}
		}
	}
	return state, nil
}

// Snapshot is the read-only query surface a debugging host renders from.
type Snapshot struct {
	Line      int              `json:"line"`
	Mode      string           `json:"mode"`
	Depth     int              `json:"depth"`
	CallStack []int            `json:"callStack"`
	Variables map[string]int16 `json:"variables"`
	Halted    bool             `json:"halted"`
}

// Snapshot captures the current inspection state.
func (d *Debugger) Snapshot() Snapshot {
	return Snapshot{
		Line:      d.it.CurrentLine(),
		Mode:      d.mode.String(),
		Depth:     d.it.Depth(),
		CallStack: d.it.CallStack(),
		Variables: d.it.Variables(),
		Halted:    d.it.Halted(),
	}
}
