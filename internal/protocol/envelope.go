package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope kinds
const (
	KindCommand = "cmd"
	KindAck     = "ack"
	KindEvent   = "evt"
	KindError   = "err"
)

// Envelope is the frame every WebSocket message travels in, both directions.
// Cid is a client-chosen correlation id echoed back on the ack or error for
// the command that carried it.
type Envelope struct {
	Kind      string          `json:"kind"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Cid       string          `json:"cid,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Game      string          `json:"game,omitempty"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId"`
}

// NewAck builds the acknowledgement for a command, echoing its cid
func NewAck(cmd *Envelope, data interface{}, now time.Time) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Kind:      KindAck,
		Type:      cmd.Type,
		Data:      raw,
		Cid:       cmd.Cid,
		Channel:   cmd.Channel,
		Game:      cmd.Game,
		Timestamp: now.UnixMilli(),
		MessageID: uuid.NewString(),
	}, nil
}

// NewEvent builds a broadcast event on a channel
func NewEvent(channel, game, eventType string, data interface{}, now time.Time) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Kind:      KindEvent,
		Type:      eventType,
		Data:      raw,
		Channel:   channel,
		Game:      game,
		Timestamp: now.UnixMilli(),
		MessageID: uuid.NewString(),
	}, nil
}

// ErrorData is the payload of an err envelope
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds the error reply for a command. A nil cmd produces an
// unanchored error with no cid.
func NewError(cmd *Envelope, code, message string, now time.Time) *Envelope {
	raw, _ := json.Marshal(ErrorData{Code: code, Message: message})
	e := &Envelope{
		Kind:      KindError,
		Type:      "error",
		Data:      raw,
		Timestamp: now.UnixMilli(),
		MessageID: uuid.NewString(),
	}
	if cmd != nil {
		e.Cid = cmd.Cid
		e.Channel = cmd.Channel
		e.Game = cmd.Game
	}
	return e
}
