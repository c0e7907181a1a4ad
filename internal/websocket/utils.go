package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// PongWait bounds how long a silent connection is kept. Clients ping at least every 30s.
	PongWait = 2 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// ReadEnvelope reads one message and peeks at its action. The raw bytes are
// returned for DecodeAs.
func ReadEnvelope(conn *websocket.Conn) (RequestEnvelope, []byte, error) {
	var env RequestEnvelope

	conn.SetReadDeadline(time.Now().Add(PongWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return env, nil, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, raw, err
	}
	return env, raw, nil
}

// DecodeAs decodes a raw request into its typed form.
func DecodeAs[T any](raw []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}
