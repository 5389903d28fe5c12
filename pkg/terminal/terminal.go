// Package terminal is the WebSocket front of the server: it authenticates
// connections, binds each one to a worker, and translates the JSON command
// protocol into worker and store operations.
package terminal

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kkismd/gridworker/pkg/auth"
	"github.com/kkismd/gridworker/pkg/logger"
	"github.com/kkismd/gridworker/pkg/session"
	"github.com/kkismd/gridworker/pkg/shared"
)

// Handler accepts WebSocket connections and routes client commands.
type Handler struct {
	manager  *session.Manager
	clients  *ClientManager
	upgrader websocket.Upgrader
}

// NewHandler builds a handler on top of a session manager.
func NewHandler(manager *session.Manager) *Handler {
	return &Handler{
		manager: manager,
		clients: NewClientManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades an authenticated request, creates a worker for
// the session and starts the connection pumps.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "connection without token from %s", r.RemoteAddr)
		http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
		return
	}
	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "invalid token from %s: %v", r.RemoteAddr, err)
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	if err := h.clients.CheckRateLimit(clientIP(r)); err != nil {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	worker, err := h.manager.CreateWorker(claims.Username)
	if err != nil {
		logger.Warn(logger.AreaWebSocket, "worker creation refused for %s: %v", r.RemoteAddr, err)
		conn.WriteJSON(shared.Message{Type: shared.MessageTypeError, Content: err.Error()})
		conn.Close()
		return
	}

	client := newClient(conn, worker, h)
	h.clients.AddClient(worker.ID, client)

	client.enqueue(shared.Message{Type: shared.MessageTypeSession, SessionID: worker.ID})
	logger.Info(logger.AreaWebSocket, "worker %s connected from %s (user %q)", worker.ID, r.RemoteAddr, claims.Username)

	go client.writePump()
	go client.forwardPump()
	go client.readPump()
}

// cleanupClient tears down the connection and its worker.
func (h *Handler) cleanupClient(c *Client) {
	c.close()
	h.clients.RemoveClient(c.worker.ID)
	h.manager.RemoveWorker(c.worker.ID)
	logger.Info(logger.AreaWebSocket, "worker %s disconnected", c.worker.ID)
}

// dispatch executes one client command against the worker.
func (h *Handler) dispatch(c *Client, cmd shared.Command) {
	w := c.worker
	logger.Debug(logger.AreaWebSocket, "worker %s command %q", w.ID, cmd.Cmd)

	switch cmd.Cmd {
	case shared.CmdLoad:
		if int64(len(cmd.Source)) > getMaxMessageSize() {
			c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "program too large"})
			return
		}
		if err := w.Load(cmd.Source); err != nil {
			c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: err.Error()})
		}

	case shared.CmdRun, shared.CmdContinue:
		w.Run()

	case shared.CmdStop:
		w.Stop()

	case shared.CmdStep, shared.CmdStepIn:
		w.StepIn()

	case shared.CmdStepOver:
		w.StepOver()

	case shared.CmdStepOut:
		w.StepOut()

	case shared.CmdBreak:
		w.SetBreakpoint(cmd.Line)

	case shared.CmdUnbreak:
		w.RemoveBreakpoint(cmd.Line)

	case shared.CmdClearBreaks:
		w.ClearBreakpoints()

	case shared.CmdSnapshot:
		snap := w.Snapshot()
		c.enqueue(shared.Message{Type: shared.MessageTypeSnapshot, Snapshot: &snap})

	case shared.CmdInput:
		w.QueueInput(int16(cmd.Code))

	case shared.CmdGrid:
		c.enqueue(h.manager.GridRegion(cmd.X, cmd.Y, cmd.W, cmd.H))

	case shared.CmdSave:
		h.saveProgram(c, cmd)

	case shared.CmdDir:
		h.listPrograms(c)

	case shared.CmdLoadProg:
		h.loadProgram(c, cmd)

	default:
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "unknown command: " + cmd.Cmd})
	}
}

// errLoginRequired gates the persistence commands for guest sessions.
var errLoginRequired = errors.New("login required for stored programs")

func (h *Handler) requireUser(c *Client) (string, bool) {
	if h.manager.Store() == nil || c.worker.Username == "" {
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: errLoginRequired.Error()})
		return "", false
	}
	return c.worker.Username, true
}

func (h *Handler) saveProgram(c *Client, cmd shared.Command) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	if cmd.Name == "" {
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "program name required"})
		return
	}
	source := cmd.Source
	if source == "" {
		source = c.worker.Source()
	}
	if source == "" {
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "nothing to save"})
		return
	}
	if err := h.manager.Store().SaveProgram(username, cmd.Name, source); err != nil {
		logger.Error(logger.AreaWebSocket, "save failed for %s/%s: %v", username, cmd.Name, err)
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "save failed"})
		return
	}
	c.enqueue(shared.Message{Type: shared.MessageTypeStatus, State: "saved", Content: cmd.Name})
}

func (h *Handler) listPrograms(c *Client) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	names, err := h.manager.Store().ListPrograms(username)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "dir failed for %s: %v", username, err)
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "listing failed"})
		return
	}
	c.enqueue(shared.Message{Type: shared.MessageTypeDir, Programs: names})
}

func (h *Handler) loadProgram(c *Client, cmd shared.Command) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	source, err := h.manager.Store().LoadProgram(username, cmd.Name)
	if err != nil {
		if errors.Is(err, session.ErrProgramNotFound) {
			c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "no such program: " + cmd.Name})
			return
		}
		logger.Error(logger.AreaWebSocket, "loadprog failed for %s/%s: %v", username, cmd.Name, err)
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "load failed"})
		return
	}
	if err := c.worker.Load(source); err != nil {
		c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: err.Error()})
	}
}

// clientIP extracts the client IP, honoring proxy headers.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
