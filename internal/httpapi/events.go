package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/logger"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscribeMessage struct {
	Topics []string `json:"topics"`
}

type subscribedMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// handleEventsWS implements the /api/ws subscribe protocol: the client
// sends {"topics":[...]} once, the server replies with a Subscribed
// acknowledgement, then streams eventbus.Event values until the client
// disconnects. A 30s server ping whose pong never arrives closes the
// connection, mirroring cmd/api/api/exec.go's websocket shape adapted from
// a single exec stream to a fan-out subscription.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	ws, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	var sub subscribeMessage
	if err := ws.ReadJSON(&sub); err != nil {
		ws.WriteJSON(map[string]string{"error": "first message must be a topics subscribe request"})
		return
	}
	topics := make([]eventbus.Topic, 0, len(sub.Topics))
	for _, t := range sub.Topics {
		topics = append(topics, eventbus.Topic(t))
	}
	subscription, err := s.deps.Bus.Subscribe(topics)
	if err != nil {
		ws.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	defer subscription.Close()

	if err := ws.WriteJSON(subscribedMessage{Type: "Subscribed", Topics: sub.Topics}); err != nil {
		return
	}

	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	go func() {
		drainPongs(ws)
		ws.Close()
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-subscription.C:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// drainPongs discards inbound control frames (pongs, and any stray client
// messages) so gorilla's read loop keeps servicing SetPongHandler.
func drainPongs(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
