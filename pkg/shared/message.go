// Package shared holds the message types exchanged between the server and
// connected clients over the WebSocket. Both pkg/session and pkg/terminal
// depend on them, so they live outside either package.
package shared

import "github.com/kkismd/gridworker/pkg/gridbasic"

// MessageType identifies a server-to-client message.
type MessageType int

const (
	MessageTypeText     MessageType = 0 // program output
	MessageTypeError    MessageType = 1 // parse or runtime error text
	MessageTypeStatus   MessageType = 2 // worker state change (running, suspended, halted, faulted)
	MessageTypeSnapshot MessageType = 3 // debugger snapshot
	MessageTypeSession  MessageType = 4 // session identifier after connect
	MessageTypeGrid     MessageType = 5 // grid region update
	MessageTypeDir      MessageType = 6 // stored program listing
	MessageTypePrompt   MessageType = 7 // input is being awaited
)

// Message is a server-to-client frame. Only the fields relevant to the
// message type are populated.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`

	// MessageTypeSession
	SessionID string `json:"sessionId,omitempty"`

	// MessageTypeStatus
	State string `json:"state,omitempty"`
	Line  int    `json:"line,omitempty"`

	// MessageTypeSnapshot
	Snapshot *gridbasic.Snapshot `json:"snapshot,omitempty"`

	// MessageTypeGrid
	GridX      int     `json:"gridX,omitempty"`
	GridY      int     `json:"gridY,omitempty"`
	GridWidth  int     `json:"gridWidth,omitempty"`
	GridHeight int     `json:"gridHeight,omitempty"`
	GridCells  []int16 `json:"gridCells,omitempty"`

	// MessageTypeDir
	Programs []string `json:"programs,omitempty"`
}

// Command is a client-to-server frame. Cmd selects the action; the other
// fields carry its arguments.
type Command struct {
	Cmd string `json:"cmd"`

	// load, save, loadprog
	Source string `json:"source,omitempty"`
	Name   string `json:"name,omitempty"`

	// break, unbreak
	Line int `json:"line,omitempty"`

	// input
	Code int `json:"code,omitempty"`

	// grid region query; zero width and height means the whole grid
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
	W int `json:"w,omitempty"`
	H int `json:"h,omitempty"`
}

// Client command names understood by the terminal handler.
const (
	CmdLoad        = "load"
	CmdRun         = "run"
	CmdStop        = "stop"
	CmdStep        = "step"
	CmdContinue    = "continue"
	CmdStepIn      = "stepin"
	CmdStepOver    = "stepover"
	CmdStepOut     = "stepout"
	CmdBreak       = "break"
	CmdUnbreak     = "unbreak"
	CmdClearBreaks = "clearbreaks"
	CmdSnapshot    = "snapshot"
	CmdInput       = "input"
	CmdSave        = "save"
	CmdDir         = "dir"
	CmdLoadProg    = "loadprog"
	CmdGrid        = "grid"
)
