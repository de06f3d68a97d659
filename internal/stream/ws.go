package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"example.com/fitsession/internal/events"
)

// FrameSink accepts decoded device frames from the websocket transport.
type FrameSink interface {
	HandleFrame(events.DeviceFrame) error
}

const (
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Bridges run on the same host or LAN; the API layer handles auth.
	CheckOrigin: func(*http.Request) bool { return true },
}

// IngestHandler upgrades the connection and reads device frames until
// the client disconnects. Malformed frames get an error reply but do
// not close the connection.
func IngestHandler(sink FrameSink, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Printf("ingest upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameSize)

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					hub.logger.Printf("ingest read error: %v", err)
				}
				return
			}

			var frame events.DeviceFrame
			handleErr := json.Unmarshal(payload, &frame)
			if handleErr == nil {
				handleErr = sink.HandleFrame(frame)
			}
			if handleErr != nil {
				reply, _ := json.Marshal(map[string]string{"error": handleErr.Error()})
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if werr := conn.WriteMessage(websocket.TextMessage, reply); werr != nil {
					return
				}
			}
		}
	}
}

// DashboardHandler upgrades the connection and streams hub broadcasts
// until the client disconnects.
func DashboardHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Printf("dashboard upgrade failed: %v", err)
			return
		}

		client := hub.Register()
		defer hub.Unregister(client)
		defer conn.Close()

		// Drain reads so close frames and pongs are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case payload, ok := <-client.Send:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
