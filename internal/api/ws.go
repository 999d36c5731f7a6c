package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/store"
)

// Run events over WebSocket, framed like graphql-transport-ws:
// connection_init/connection_ack, subscribe/next/complete, ping/pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	RunID     string `json:"runId"`
	ProjectID string `json:"projectId"`
}

type wsSub struct {
	topic string
	ch    chan SSEEvent
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	project := projectOf(r)
	if q := strings.TrimSpace(r.URL.Query().Get("projectId")); q != "" {
		project = q
	}

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	sendErr := func(id, msg string) {
		payload, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
		_ = write(wsMessage{Type: "complete", ID: id})
	}
	next := func(id string, evt SSEEvent) error {
		payload, _ := json.Marshal(evt)
		return write(wsMessage{Type: "next", ID: id, Payload: payload})
	}

	var smu sync.Mutex
	subs := map[string]wsSub{}
	done := make(chan struct{})
	defer func() {
		close(done)
		smu.Lock()
		for id, sub := range subs {
			s.Broker.Unsubscribe(sub.topic, sub.ch)
			delete(subs, id)
		}
		smu.Unlock()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	acked := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			if acked {
				continue
			}
			acked = true
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
		case "subscribe":
			if !acked {
				sendErr(msg.ID, "connection_init required")
				continue
			}
			if msg.ID == "" {
				sendErr(msg.ID, "subscription id required")
				continue
			}
			smu.Lock()
			_, dup := subs[msg.ID]
			smu.Unlock()
			if dup {
				sendErr(msg.ID, "subscription id already in use")
				continue
			}
			var pl wsSubscribe
			_ = json.Unmarshal(msg.Payload, &pl)
			s.wsSubscribe(r, msg.ID, project, pl, &smu, subs, next, write, sendErr)
		case "complete":
			smu.Lock()
			sub, ok := subs[msg.ID]
			smu.Unlock()
			if ok {
				// the forwarder sees the closed channel and sends complete
				s.Broker.Unsubscribe(sub.topic, sub.ch)
			}
		default:
			// ignore
		}
	}
}

func (s *Server) wsSubscribe(r *http.Request, id, project string, pl wsSubscribe, smu *sync.Mutex, subs map[string]wsSub,
	next func(string, SSEEvent) error, write func(any) error, sendErr func(string, string)) {
	if pl.ProjectID != "" {
		project = pl.ProjectID
	}
	var topic string
	switch {
	case pl.RunID != "":
		topic = runTopic(pl.RunID)
	case project != "":
		topic = projectTopic(project)
	default:
		sendErr(id, "runId or projectId required")
		return
	}
	ch := s.Broker.Subscribe(topic)

	if pl.RunID != "" {
		run, err := s.Store.GetRun(r.Context(), project, pl.RunID)
		if err != nil {
			s.Broker.Unsubscribe(topic, ch)
			if errors.Is(err, store.ErrNotFound) {
				sendErr(id, "run not found")
			} else {
				sendErr(id, err.Error())
			}
			return
		}
		if t := terminalEvent(run); t != "" {
			s.Broker.Unsubscribe(topic, ch)
			_ = next(id, SSEEvent{Type: t, Data: eventData(run)})
			_ = write(wsMessage{Type: "complete", ID: id})
			return
		}
	}

	smu.Lock()
	subs[id] = wsSub{topic: topic, ch: ch}
	smu.Unlock()
	go func() {
		for evt := range ch {
			if err := next(id, evt); err != nil {
				break
			}
			if pl.RunID != "" && isTerminal(evt.Type) {
				break
			}
		}
		s.Broker.Unsubscribe(topic, ch)
		smu.Lock()
		delete(subs, id)
		smu.Unlock()
		_ = write(wsMessage{Type: "complete", ID: id})
	}()
}
