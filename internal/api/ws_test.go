package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/model"
)

func dialWS(t *testing.T, s *Server, project string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	hdr := http.Header{}
	hdr.Set("X-Project-Id", project)
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != "ping" {
			return msg
		}
	}
}

func TestWSRunSubscription(t *testing.T) {
	s := newTestServer(t)
	run := model.Run{ID: "r-ws", ProjectID: "pw", Status: model.RunRunning, CreatedAt: time.Now()}
	if err := s.Store.SaveRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	conn := dialWS(t, s, "pw")

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, conn); msg.Type != "connection_ack" {
		t.Fatalf("got %+v, want connection_ack", msg)
	}
	payload, _ := json.Marshal(wsSubscribe{RunID: "r-ws"})
	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: payload}); err != nil {
		t.Fatal(err)
	}
	// round trip a ping so the subscription is registered before publishing
	_ = conn.WriteJSON(wsMessage{Type: "ping"})
	if msg := readWS(t, conn); msg.Type != "pong" {
		t.Fatalf("got %+v, want pong", msg)
	}

	run.Status = model.RunCompleted
	s.publish(context.Background(), run, model.EventRunCompleted)

	msg := readWS(t, conn)
	if msg.Type != "next" || msg.ID != "1" {
		t.Fatalf("got %+v, want next", msg)
	}
	var evt SSEEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil || evt.Type != model.EventRunCompleted || evt.Data["runId"] != "r-ws" {
		t.Fatalf("payload %s (%v)", msg.Payload, err)
	}
	if msg := readWS(t, conn); msg.Type != "complete" || msg.ID != "1" {
		t.Fatalf("got %+v, want complete", msg)
	}
}

func TestWSFinishedRunAndErrors(t *testing.T) {
	s := newTestServer(t)
	_, out := optimize(t, s, "pf", scenarioA)
	conn := dialWS(t, s, "pf")

	payload, _ := json.Marshal(wsSubscribe{RunID: out.RunID})
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "early", Payload: payload})
	if msg := readWS(t, conn); msg.Type != "error" {
		t.Fatalf("subscribe before init: %+v", msg)
	}
	if msg := readWS(t, conn); msg.Type != "complete" {
		t.Fatalf("got %+v, want complete", msg)
	}

	_ = conn.WriteJSON(wsMessage{Type: "connection_init"})
	readWS(t, conn)
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "a", Payload: payload})
	msg := readWS(t, conn)
	if msg.Type != "next" || !strings.Contains(string(msg.Payload), model.EventRunCompleted) {
		t.Fatalf("replay: %+v", msg)
	}
	if msg := readWS(t, conn); msg.Type != "complete" {
		t.Fatalf("got %+v, want complete", msg)
	}

	missing, _ := json.Marshal(wsSubscribe{RunID: "nope"})
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "b", Payload: missing})
	if msg := readWS(t, conn); msg.Type != "error" || !strings.Contains(string(msg.Payload), "not found") {
		t.Fatalf("missing run: %+v", msg)
	}
}
