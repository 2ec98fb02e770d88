package domain

import (
	"bytes"
	"encoding/json"

	"go.trai.ch/zerr"
)

// BusyMessage is the literal notification sent before every reply.
const BusyMessage = "busy"

// Action names the operation to run and carries its argument bag.
type Action struct {
	FunctionName string         `json:"functionName"`
	Inputs       map[string]any `json:"inputs"`
}

// Request is the envelope a caller posts to the worker.
type Request struct {
	Action Action `json:"action"`
	UID    string `json:"uid"`
}

// Message is one frame sent from the worker to the caller: either the busy
// notification or the reply to a request.
type Message struct {
	Busy   bool   `json:"busy,omitempty"`
	UID    string `json:"uid,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Busy returns the busy notification.
func Busy() Message {
	return Message{Busy: true}
}

// Reply returns a success frame for uid.
func Reply(uid string, result any) Message {
	return Message{UID: uid, Result: result}
}

// Failure returns an error frame for uid. Its result is always undefined.
func Failure(uid, msg string) Message {
	return Message{UID: uid, Error: msg}
}

// Failed reports whether the message carries an error.
func (m Message) Failed() bool {
	return m.Error != ""
}

type replyJSON struct {
	UID    string `json:"uid"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MarshalJSON encodes the busy notification as the bare string "busy" and
// replies as objects, the shape browser callers expect.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Busy {
		return json.Marshal(BusyMessage)
	}
	if m.Failed() {
		return json.Marshal(replyJSON{UID: m.UID, Error: m.Error})
	}
	return json.Marshal(replyJSON{UID: m.UID, Result: m.Result})
}

// UnmarshalJSON accepts both frame shapes produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s != BusyMessage {
			return zerr.With(zerr.New("unknown notification"), "message", s)
		}
		*m = Busy()
		return nil
	}
	var r replyJSON
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return err
	}
	*m = Message{UID: r.UID, Result: r.Result, Error: r.Error}
	return nil
}
