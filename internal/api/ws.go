package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Job event subscriptions over WebSocket, framed like graphql-transport-ws:
// connection_init/connection_ack, subscribe{jobId}, next, complete and
// ping/pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	JobID string `json:"jobId"`
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		jobID string
		ch    chan Event
	}
	subs := map[string]sub{}
	defer func() {
		for id, s0 := range subs {
			s.Broker.Unsubscribe(s0.jobID, s0.ch)
			delete(subs, id)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// gorilla connections allow one concurrent writer
	var wmu sync.Mutex
	write := func(v wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	writeEvent := func(id string, evt Event) error {
		payload, _ := json.Marshal(evt)
		return write(wsMessage{Type: "next", ID: id, Payload: payload})
	}
	fail := func(id, msg string) {
		payload, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
		_ = write(wsMessage{Type: "complete", ID: id})
	}

	done := make(chan struct{})
	defer close(done)
	initialized := false

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			if initialized {
				continue
			}
			initialized = true
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !initialized {
				fail(msg.ID, "connection_init required")
				continue
			}
			if msg.ID == "" {
				fail(msg.ID, "subscription id required")
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				fail(msg.ID, "subscription id in use")
				continue
			}
			var pl subscribePayload
			if err := json.Unmarshal(msg.Payload, &pl); err != nil || pl.JobID == "" {
				fail(msg.ID, "jobId required")
				continue
			}
			ch := s.Broker.Subscribe(pl.JobID)
			job, err := s.Store.GetJob(r.Context(), pl.JobID)
			if err != nil {
				s.Broker.Unsubscribe(pl.JobID, ch)
				fail(msg.ID, err.Error())
				continue
			}
			subs[msg.ID] = sub{jobID: pl.JobID, ch: ch}
			if job.Status.Terminal() {
				_ = writeEvent(msg.ID, terminalEvent(job))
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			go func(id string, c chan Event) {
				for evt := range c {
					if err := writeEvent(id, evt); err != nil {
						return
					}
					if isTerminalEvent(evt.Type) {
						break
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.jobID, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			s.Log.Debug("ws: ignoring message", zap.String("type", msg.Type))
		}
	}
}
