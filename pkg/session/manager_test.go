package session

import (
	"strings"
	"testing"
	"time"

	"github.com/kkismd/gridworker/pkg/gridbasic"
	"github.com/kkismd/gridworker/pkg/shared"
)

// newDeadline returns a poll helper that reports true once two seconds have
// passed, sleeping briefly between calls.
func newDeadline() func() bool {
	end := time.Now().Add(2 * time.Second)
	return func() bool {
		time.Sleep(5 * time.Millisecond)
		return time.Now().After(end)
	}
}

// drain empties a worker's send channel and returns everything queued so
// far.
func drain(w *Worker) []shared.Message {
	var msgs []shared.Message
	for {
		select {
		case msg := <-w.Send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// runToCompletion ticks a started worker until it goes inactive.
func runToCompletion(t *testing.T, w *Worker) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		w.tick(100)
		w.mu.Lock()
		active := w.active
		w.mu.Unlock()
		if !active {
			return
		}
	}
	t.Fatal("worker did not finish within the tick limit")
}

func TestWorkerRegistry(t *testing.T) {
	m := NewManager(nil)

	w1, err := m.CreateWorker("alice")
	if err != nil {
		t.Fatalf("CreateWorker failed: %v", err)
	}
	w2, err := m.CreateWorker("")
	if err != nil {
		t.Fatalf("CreateWorker (guest) failed: %v", err)
	}
	if w1.ID == w2.ID {
		t.Error("Worker IDs should be unique")
	}
	if m.WorkerCount() != 2 {
		t.Errorf("Expected 2 workers, got %d", m.WorkerCount())
	}

	got, ok := m.GetWorker(w1.ID)
	if !ok || got != w1 {
		t.Error("GetWorker should return the registered worker")
	}

	m.RemoveWorker(w1.ID)
	if _, ok := m.GetWorker(w1.ID); ok {
		t.Error("Removed worker should not be found")
	}
	if m.WorkerCount() != 1 {
		t.Errorf("Expected 1 worker after removal, got %d", m.WorkerCount())
	}
}

func TestWorkerLimit(t *testing.T) {
	m := NewManager(nil)
	m.maxWorkers = 1

	if _, err := m.CreateWorker("first"); err != nil {
		t.Fatalf("First worker should fit: %v", err)
	}
	if _, err := m.CreateWorker("second"); err != ErrBoardFull {
		t.Errorf("Expected ErrBoardFull, got %v", err)
	}
}

func TestWorkerRunsProgramToHalt(t *testing.T) {
	m := NewManager(nil)
	w, _ := m.CreateWorker("alice")

	err := w.Load("A=1\nB=A+2\n? \"done\"\nHALT\n")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w.Run()
	runToCompletion(t, w)

	var sawOutput, sawHalted bool
	for _, msg := range drain(w) {
		if msg.Type == shared.MessageTypeText && msg.Content == "done" {
			sawOutput = true
		}
		if msg.Type == shared.MessageTypeStatus && msg.State == "halted" {
			sawHalted = true
		}
	}
	if !sawOutput {
		t.Error("Expected the program's output message")
	}
	if !sawHalted {
		t.Error("Expected a halted status message")
	}

	if got := w.Snapshot().Variables["B"]; got != 3 {
		t.Errorf("B = %d, want 3", got)
	}
}

func TestWorkerLoadErrorReported(t *testing.T) {
	m := NewManager(nil)
	w, _ := m.CreateWorker("alice")

	err := w.Load("? \"unterminated\n")
	if err == nil {
		t.Fatal("Load of a bad program should fail")
	}
	if !strings.Contains(err.Error(), "LINE 1") {
		t.Errorf("Error should name the line, got %q", err.Error())
	}

	// Running a worker without a program is a no-op.
	w.Run()
	w.tick(10)
	for _, msg := range drain(w) {
		if msg.Type == shared.MessageTypeStatus && msg.State == "running" {
			t.Error("Worker without a program should not start running")
		}
	}
}

func TestWorkerBreakpointPausesAndResumes(t *testing.T) {
	m := NewManager(nil)
	w, _ := m.CreateWorker("alice")

	if err := w.Load("A=1\nB=2\nHALT\n"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w.SetBreakpoint(2)
	w.Run()
	runToCompletion(t, w)

	var sawSuspended bool
	var snap *gridbasic.Snapshot
	for _, msg := range drain(w) {
		if msg.Type == shared.MessageTypeStatus && msg.State == "suspended" {
			sawSuspended = true
		}
		if msg.Type == shared.MessageTypeSnapshot {
			snap = msg.Snapshot
		}
	}
	if !sawSuspended {
		t.Fatal("Expected a suspended status at the breakpoint")
	}
	if snap == nil {
		t.Fatal("Expected a snapshot message at the breakpoint")
	}
	if snap.Variables["A"] != 1 || snap.Variables["B"] != 0 {
		t.Errorf("Breakpoint should fire before line 2: A=%d B=%d", snap.Variables["A"], snap.Variables["B"])
	}

	// Resume past the breakpoint to completion.
	w.Run()
	runToCompletion(t, w)
	if got := w.Snapshot().Variables["B"]; got != 2 {
		t.Errorf("B = %d after resume, want 2", got)
	}
}

func TestWorkerStepIn(t *testing.T) {
	m := NewManager(nil)
	w, _ := m.CreateWorker("alice")

	if err := w.Load("A=1\nB=2\nHALT\n"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	w.StepIn()
	runToCompletion(t, w)
	snap := w.Snapshot()
	if snap.Variables["A"] != 1 || snap.Variables["B"] != 0 {
		t.Errorf("After one step: A=%d B=%d, want A=1 B=0", snap.Variables["A"], snap.Variables["B"])
	}

	w.StepIn()
	runToCompletion(t, w)
	if got := w.Snapshot().Variables["B"]; got != 2 {
		t.Errorf("After two steps: B=%d, want 2", got)
	}
}

func TestWorkerFaultReported(t *testing.T) {
	m := NewManager(nil)
	w, _ := m.CreateWorker("alice")

	if err := w.Load("A=1/0\nHALT\n"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w.Run()
	runToCompletion(t, w)

	var sawError, sawFaulted bool
	for _, msg := range drain(w) {
		if msg.Type == shared.MessageTypeError {
			sawError = true
		}
		if msg.Type == shared.MessageTypeStatus && msg.State == "faulted" {
			sawFaulted = true
		}
	}
	if !sawError || !sawFaulted {
		t.Errorf("Expected error and faulted status, got error=%v faulted=%v", sawError, sawFaulted)
	}
}

func TestWorkerInputQueue(t *testing.T) {
	m := NewManager(nil)
	w, _ := m.CreateWorker("alice")

	if err := w.Load("A=`\nB=`\nHALT\n"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w.QueueInput(42)
	w.Run()
	runToCompletion(t, w)

	snap := w.Snapshot()
	if snap.Variables["A"] != 42 {
		t.Errorf("A = %d, want the queued code 42", snap.Variables["A"])
	}
	if snap.Variables["B"] != 0 {
		t.Errorf("B = %d, want 0 when the queue is empty", snap.Variables["B"])
	}
}

func TestWorkersShareTheGrid(t *testing.T) {
	m := NewManager(nil)
	writer, _ := m.CreateWorker("alice")
	reader, _ := m.CreateWorker("bob")

	if err := writer.Load("@(3,4)=7\nHALT\n"); err != nil {
		t.Fatalf("Load writer failed: %v", err)
	}
	writer.Run()
	runToCompletion(t, writer)

	if err := reader.Load("A=@(3,4)\nHALT\n"); err != nil {
		t.Fatalf("Load reader failed: %v", err)
	}
	reader.Run()
	runToCompletion(t, reader)

	if got := reader.Snapshot().Variables["A"]; got != 7 {
		t.Errorf("Reader saw %d at (3,4), want 7", got)
	}
}

func TestGridRegionMessage(t *testing.T) {
	m := NewManager(nil)
	m.Grid().Write(1, 1, 5)
	m.Grid().Write(2, 1, 6)

	msg := m.GridRegion(1, 1, 2, 1)
	if msg.Type != shared.MessageTypeGrid {
		t.Fatalf("Expected grid message, got type %d", msg.Type)
	}
	if msg.GridWidth != 2 || msg.GridHeight != 1 {
		t.Errorf("Region size %dx%d, want 2x1", msg.GridWidth, msg.GridHeight)
	}
	if len(msg.GridCells) != 2 || msg.GridCells[0] != 5 || msg.GridCells[1] != 6 {
		t.Errorf("Region cells %v, want [5 6]", msg.GridCells)
	}

	// Zero size selects the whole grid.
	full := m.GridRegion(0, 0, 0, 0)
	if len(full.GridCells) != m.Grid().Width()*m.Grid().Height() {
		t.Errorf("Full region has %d cells, want %d", len(full.GridCells), m.Grid().Width()*m.Grid().Height())
	}
}

func TestSchedulerTicksWorkers(t *testing.T) {
	m := NewManager(nil)
	m.Start()
	defer m.Shutdown()

	w, _ := m.CreateWorker("alice")
	if err := w.Load("A=1\nHALT\n"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	w.Run()

	deadline := newDeadline()
	for w.Snapshot().Variables["A"] != 1 {
		if deadline() {
			t.Fatal("scheduler never ran the worker")
		}
	}
}
