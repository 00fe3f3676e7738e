package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-engine/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart          Action = "start"
	ActionAnswer         Action = "answer"
	ActionFlag           Action = "flag"
	ActionNavigate       Action = "navigate"
	ActionNextUnanswered Action = "next_unanswered"
	ActionOpenReview     Action = "open_review"
	ActionCloseReview    Action = "close_review"
	ActionSubmit         Action = "submit"
	ActionExit           Action = "exit"
	ActionUnload         Action = "unload"
	ActionLeave          Action = "leave"
	ActionConfirmReply   Action = "confirm_reply"
	ActionPing           Action = "ping"
)

// Request is every client message. Fields not used by an action are left
// empty.
type Request struct {
	Action Action            `json:"action"`
	Config *model.ExamConfig `json:"config,omitempty"`
	QID    string            `json:"q_id,omitempty"`
	Answer string            `json:"ans,omitempty"`
	Index  *int              `json:"index,omitempty"`
	To     string            `json:"to,omitempty"`
	ID     string            `json:"id,omitempty"`
	OK     bool              `json:"ok,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState         Event = "state"
	EventTick          Event = "tick"
	EventConfirm       Event = "confirm"
	EventResult        Event = "result"
	EventCursor        Event = "cursor"
	EventUnloadWarning Event = "unload_warning"
	EventLeave         Event = "leave"
	EventError         Event = "error"
	EventPong          Event = "pong"
)

// Response wraps every server message.
type Response struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type TickData struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

type ConfirmData struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type CursorData struct {
	Index int  `json:"index"`
	Found bool `json:"found"`
}

type UnloadWarningData struct {
	Message string `json:"message"`
}

type LeaveData struct {
	To      string `json:"to"`
	Allowed bool   `json:"allowed"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
