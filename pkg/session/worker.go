package session

import (
	"sync"
	"time"

	"github.com/kkismd/gridworker/pkg/gridbasic"
	"github.com/kkismd/gridworker/pkg/logger"
	"github.com/kkismd/gridworker/pkg/shared"
)

// Worker is one scripted participant: a private engine and address space,
// plus a position on the board's shared grid. All exported methods are safe
// to call from the connection goroutine while the scheduler ticks the worker
// from its own goroutine.
type Worker struct {
	ID       string
	Username string

	mu     sync.Mutex
	it     *gridbasic.Interpreter
	dbg    *gridbasic.Debugger
	host   *gridbasic.MemoryHost
	input  chan int16
	active bool
	loaded bool
	source string

	// Send carries messages to the connected client. Sends never block;
	// frames are dropped when the client cannot keep up.
	Send chan shared.Message

	lastActive time.Time
}

func newWorker(id, username string, grid *gridbasic.Grid, x, y int16, spaceSize, inputLimit, sendBuffer int) *Worker {
	w := &Worker{
		ID:         id,
		Username:   username,
		input:      make(chan int16, inputLimit),
		Send:       make(chan shared.Message, sendBuffer),
		lastActive: time.Now(),
	}
	w.host = &gridbasic.MemoryHost{
		Space:  gridbasic.NewSpace(spaceSize),
		Grid:   grid,
		Output: w.emitText,
		Input:  w.nextInputCode,
	}
	w.it = gridbasic.New(w.host)
	w.it.SetGridPosition(x, y)
	w.dbg = gridbasic.NewDebugger(w.it)
	w.dbg.Pause()
	return w
}

// emitText forwards program output. Called from inside Step, so the worker
// lock is already held.
func (w *Worker) emitText(text string) {
	w.emit(shared.Message{Type: shared.MessageTypeText, Content: text})
}

// nextInputCode drains one queued input code, or reports none pending.
func (w *Worker) nextInputCode() int16 {
	select {
	case code := <-w.input:
		return code
	default:
		return 0
	}
}

func (w *Worker) emit(msg shared.Message) {
	select {
	case w.Send <- msg:
	default:
		logger.Debug(logger.AreaSession, "worker %s dropped message type %d", w.ID, msg.Type)
	}
}

func (w *Worker) touch() {
	w.lastActive = time.Now()
}

// Source returns the most recently loaded program text, or an empty string
// when nothing is loaded.
func (w *Worker) Source() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.source
}

// IdleFor reports how long since the client last issued a command.
func (w *Worker) IdleFor() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastActive)
}

// Load parses and installs a program. The worker comes up paused at the
// first line; breakpoints survive the reload.
func (w *Worker) Load(source string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if err := w.it.Load(source); err != nil {
		w.loaded = false
		w.active = false
		w.source = ""
		return err
	}
	w.loaded = true
	w.active = false
	w.source = source
	w.dbg.Restart()
	w.emit(shared.Message{Type: shared.MessageTypeStatus, State: "loaded"})
	return nil
}

// Run resumes free execution until a breakpoint, halt or fault.
func (w *Worker) Run() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if !w.loaded || w.it.Halted() {
		return
	}
	w.dbg.Continue()
	w.active = true
	w.emit(shared.Message{Type: shared.MessageTypeStatus, State: "running"})
}

// Stop pauses execution at the current suspension point.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.dbg.Pause()
	w.active = false
	w.emit(shared.Message{
		Type:  shared.MessageTypeStatus,
		State: "suspended",
		Line:  w.it.CurrentLine(),
	})
}

// Restart rewinds a loaded program to its first line without clearing the
// shared grid or the worker's address space.
func (w *Worker) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if !w.loaded {
		return
	}
	w.it.Reset()
	w.active = false
	w.dbg.Restart()
	w.emit(shared.Message{Type: shared.MessageTypeStatus, State: "loaded"})
}

// StepIn executes exactly one statement on the next scheduler tick.
func (w *Worker) StepIn() { w.stepMode((*gridbasic.Debugger).StepIn) }

// StepOver executes until the current call depth is reached again, treating
// subroutine calls as one unit.
func (w *Worker) StepOver() { w.stepMode((*gridbasic.Debugger).StepOver) }

// StepOut executes until the enclosing subroutine returns.
func (w *Worker) StepOut() { w.stepMode((*gridbasic.Debugger).StepOut) }

func (w *Worker) stepMode(set func(*gridbasic.Debugger)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if !w.loaded || w.it.Halted() {
		return
	}
	set(w.dbg)
	w.active = true
}

// SetBreakpoint arms a source line.
func (w *Worker) SetBreakpoint(line int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.dbg.SetBreakpoint(line)
}

// RemoveBreakpoint disarms one line.
func (w *Worker) RemoveBreakpoint(line int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.dbg.RemoveBreakpoint(line)
}

// ClearBreakpoints disarms every line.
func (w *Worker) ClearBreakpoints() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	w.dbg.ClearBreakpoints()
}

// Snapshot captures the current inspection state.
func (w *Worker) Snapshot() gridbasic.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	return w.dbg.Snapshot()
}

// QueueInput enqueues one input code for the ` system variable. Codes are
// dropped when the queue is full.
func (w *Worker) QueueInput(code int16) {
	w.mu.Lock()
	w.touch()
	w.mu.Unlock()
	select {
	case w.input <- code:
	default:
		logger.Debug(logger.AreaSession, "worker %s input queue full, code %d dropped", w.ID, code)
	}
}

// tick runs up to budget statements. The scheduler calls this once per
// scheduling round for every worker that has work pending.
func (w *Worker) tick(budget int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}

	state, err := w.dbg.Run(budget)
	switch {
	case err != nil:
		w.active = false
		w.emit(shared.Message{Type: shared.MessageTypeError, Content: err.Error()})
		w.emit(shared.Message{
			Type:  shared.MessageTypeStatus,
			State: gridbasic.StateFaulted.String(),
			Line:  w.it.CurrentLine(),
		})
	case state == gridbasic.StateHalted:
		w.active = false
		w.emit(shared.Message{
			Type:  shared.MessageTypeStatus,
			State: gridbasic.StateHalted.String(),
			Line:  w.it.CurrentLine(),
		})
	case w.dbg.Paused():
		// A breakpoint or a completed step; hand control to the client.
		w.active = false
		w.emit(shared.Message{
			Type:  shared.MessageTypeStatus,
			State: "suspended",
			Line:  w.it.CurrentLine(),
		})
		w.emit(shared.Message{Type: shared.MessageTypeSnapshot, Snapshot: snapshotPtr(w.dbg.Snapshot())})
	}
}

func snapshotPtr(s gridbasic.Snapshot) *gridbasic.Snapshot { return &s }
