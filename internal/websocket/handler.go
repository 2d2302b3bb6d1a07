package websocket

import (
	"encoding/json"
	"strconv"

	"ai-slidegen-be/pkg/events"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs streams a session's progress events over one websocket connection.
// The from_seq query parameter resumes after a dropped connection: the
// handler registers the observer for live delivery first, then replays the
// missed suffix of the log. A brief overlap is possible; observers order
// and dedupe by the sequence number every event carries.
func ServeWs(hub *Hub, pub *events.Publisher, c *websocket.Conn, sessionID uuid.UUID, fromSeq uint64) {
	client := NewClient(hub, c, sessionID)
	client.Hub.register <- client
	go client.writePump()

	if !client.replay(pub, fromSeq) {
		return
	}

	client.readPump() // Run readPump in current goroutine (handler)
}

// replay pushes the missed suffix of the log to the observer. Delivery
// blocks on the write pump rather than dropping, so a resumed stream has
// no gap. Returns false when the observer goes away mid-replay.
func (c *Client) replay(pub *events.Publisher, fromSeq uint64) bool {
	for _, ev := range pub.History(c.SessionID.String(), fromSeq) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		select {
		case c.Send <- data:
		case <-c.done:
			return false
		}
	}
	return true
}

// ParseFromSeq reads the resume cursor from its query-string form.
func ParseFromSeq(raw string) uint64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
