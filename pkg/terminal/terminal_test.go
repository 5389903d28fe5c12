package terminal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kkismd/gridworker/pkg/auth"
	"github.com/kkismd/gridworker/pkg/session"
	"github.com/kkismd/gridworker/pkg/shared"
)

// newTestClient wires a client to a fresh worker without a real connection.
// dispatch and enqueue never touch the conn, so command handling can be
// tested synchronously.
func newTestClient(t *testing.T, h *Handler, username string) *Client {
	t.Helper()
	worker, err := h.manager.CreateWorker(username)
	if err != nil {
		t.Fatalf("CreateWorker failed: %v", err)
	}
	return newClient(nil, worker, h)
}

// drainClient decodes everything queued for the write pump.
func drainClient(t *testing.T, c *Client) []shared.Message {
	t.Helper()
	var msgs []shared.Message
	for {
		select {
		case raw := <-c.send:
			var msg shared.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("Bad frame %q: %v", raw, err)
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatchLoadAndRun(t *testing.T) {
	m := session.NewManager(nil)
	m.Start()
	defer m.Shutdown()
	h := NewHandler(m)
	c := newTestClient(t, h, "alice")

	h.dispatch(c, shared.Command{Cmd: shared.CmdLoad, Source: "A=5\nHALT\n"})
	h.dispatch(c, shared.Command{Cmd: shared.CmdRun})

	waitFor(t, func() bool {
		return c.worker.Snapshot().Variables["A"] == 5
	}, "program to finish")
}

func TestDispatchLoadErrorIsReported(t *testing.T) {
	m := session.NewManager(nil)
	h := NewHandler(m)
	c := newTestClient(t, h, "alice")

	h.dispatch(c, shared.Command{Cmd: shared.CmdLoad, Source: "GOTO nowhere\n"})

	var sawError bool
	for _, msg := range drainClient(t, c) {
		if msg.Type == shared.MessageTypeError && strings.Contains(msg.Content, "LINE 1") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("Expected an error message naming the failing line")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	m := session.NewManager(nil)
	h := NewHandler(m)
	c := newTestClient(t, h, "alice")

	h.dispatch(c, shared.Command{Cmd: "teleport"})

	msgs := drainClient(t, c)
	if len(msgs) != 1 || msgs[0].Type != shared.MessageTypeError {
		t.Fatalf("Expected a single error message, got %v", msgs)
	}
}

func TestDispatchSnapshotAndGrid(t *testing.T) {
	m := session.NewManager(nil)
	h := NewHandler(m)
	c := newTestClient(t, h, "alice")
	m.Grid().Write(0, 0, 9)

	h.dispatch(c, shared.Command{Cmd: shared.CmdSnapshot})
	h.dispatch(c, shared.Command{Cmd: shared.CmdGrid, W: 1, H: 1})

	msgs := drainClient(t, c)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Type != shared.MessageTypeSnapshot || msgs[0].Snapshot == nil {
		t.Error("First reply should carry a snapshot")
	}
	if msgs[1].Type != shared.MessageTypeGrid || len(msgs[1].GridCells) != 1 || msgs[1].GridCells[0] != 9 {
		t.Errorf("Second reply should carry the grid cell, got %v", msgs[1])
	}
}

func TestPersistenceCommands(t *testing.T) {
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "terminal_test.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	m := session.NewManager(store)
	h := NewHandler(m)
	c := newTestClient(t, h, "alice")

	h.dispatch(c, shared.Command{Cmd: shared.CmdSave, Name: "prog", Source: "A=1\nHALT\n"})
	h.dispatch(c, shared.Command{Cmd: shared.CmdDir})
	h.dispatch(c, shared.Command{Cmd: shared.CmdLoadProg, Name: "prog"})

	msgs := drainClient(t, c)
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d: %v", len(msgs), msgs)
	}
	if msgs[0].Type != shared.MessageTypeStatus || msgs[0].State != "saved" {
		t.Errorf("Expected saved status, got %v", msgs[0])
	}
	if msgs[1].Type != shared.MessageTypeDir || len(msgs[1].Programs) != 1 || msgs[1].Programs[0] != "prog" {
		t.Errorf("Expected dir listing with prog, got %v", msgs[1])
	}
	if msgs[2].Type != shared.MessageTypeStatus || msgs[2].State != "loaded" {
		t.Errorf("Expected loaded status after loadprog, got %v", msgs[2])
	}
}

func TestPersistenceRequiresLogin(t *testing.T) {
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "terminal_guest.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	m := session.NewManager(store)
	h := NewHandler(m)
	c := newTestClient(t, h, "") // guest

	h.dispatch(c, shared.Command{Cmd: shared.CmdDir})

	msgs := drainClient(t, c)
	if len(msgs) != 1 || msgs[0].Type != shared.MessageTypeError {
		t.Fatalf("Guest dir should be refused, got %v", msgs)
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	m := session.NewManager(nil)
	m.Start()
	defer m.Shutdown()
	h := NewHandler(m)

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	// Without a token the upgrade is refused.
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("Dial without token should fail")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}

	token, err := auth.GenerateGuestToken("e2e-session")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial with token failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The first frame announces the session.
	var msg shared.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read session frame: %v", err)
	}
	if msg.Type != shared.MessageTypeSession || msg.SessionID == "" {
		t.Fatalf("Expected a session frame, got %v", msg)
	}

	// Load and run a small program, then watch it halt.
	if err := conn.WriteJSON(shared.Command{Cmd: shared.CmdLoad, Source: "? \"hi\"\nHALT\n"}); err != nil {
		t.Fatalf("Failed to send load: %v", err)
	}
	if err := conn.WriteJSON(shared.Command{Cmd: shared.CmdRun}); err != nil {
		t.Fatalf("Failed to send run: %v", err)
	}

	var sawOutput, sawHalted bool
	for !sawHalted {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed before halt was seen: %v", err)
		}
		if msg.Type == shared.MessageTypeText && msg.Content == "hi" {
			sawOutput = true
		}
		if msg.Type == shared.MessageTypeStatus && msg.State == "halted" {
			sawHalted = true
		}
	}
	if !sawOutput {
		t.Error("Expected the program's output before it halted")
	}
}
