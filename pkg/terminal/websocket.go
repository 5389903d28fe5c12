package terminal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kkismd/gridworker/pkg/configuration"
	"github.com/kkismd/gridworker/pkg/logger"
	"github.com/kkismd/gridworker/pkg/session"
	"github.com/kkismd/gridworker/pkg/shared"
)

func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 64)) * 1024
}

func getMaxChannelBuffer() int {
	return configuration.GetInt("Network", "max_channel_buffer", 1024)
}

// Client is one WebSocket connection bound to a worker. The read pump parses
// commands, the write pump serializes frames, and the forward pump relays the
// worker's messages into the write pump.
type Client struct {
	conn    *websocket.Conn
	worker  *session.Worker
	handler *Handler

	send     chan []byte
	shutdown chan struct{}
	once     sync.Once
}

func newClient(conn *websocket.Conn, worker *session.Worker, handler *Handler) *Client {
	return &Client{
		conn:     conn,
		worker:   worker,
		handler:  handler,
		send:     make(chan []byte, getMaxChannelBuffer()),
		shutdown: make(chan struct{}),
	}
}

// close tears the connection down exactly once.
func (c *Client) close() {
	c.once.Do(func() {
		close(c.shutdown)
		c.conn.Close()
	})
}

// enqueue serializes a message into the write pump without blocking. Frames
// are dropped when the client cannot keep up.
func (c *Client) enqueue(msg shared.Message) {
	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		logger.Error(logger.AreaWebSocket, "failed to marshal message type %d: %v", msg.Type, err)
		return
	}
	select {
	case c.send <- jsonBytes:
	default:
		logger.Debug(logger.AreaWebSocket, "send buffer full for worker %s, frame dropped", c.worker.ID)
	}
}

// readPump reads command frames until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.handler.cleanupClient(c)
	}()

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn(logger.AreaWebSocket, "unexpected close for worker %s: %v", c.worker.ID, err)
			} else {
				logger.Debug(logger.AreaWebSocket, "connection closed for worker %s: %v", c.worker.ID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var cmd shared.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			logger.Warn(logger.AreaWebSocket, "bad command frame from worker %s: %v", c.worker.ID, err)
			c.enqueue(shared.Message{Type: shared.MessageTypeError, Content: "invalid command frame"})
			continue
		}
		c.handler.dispatch(c, cmd)
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.shutdown:
			return
		}
	}
}

// forwardPump relays worker messages into the write pump. It runs until the
// client shuts down; the worker's channel stays open for the worker's whole
// life, so nothing here ever observes a closed channel.
func (c *Client) forwardPump() {
	for {
		select {
		case msg := <-c.worker.Send:
			c.enqueue(msg)
		case <-c.shutdown:
			return
		}
	}
}
