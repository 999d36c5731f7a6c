// Package main runs a demo WebSocket client: it watches a project's run
// events, submits a small solve and prints what arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoRequest = `{
  "stops": [
    {"id": "depot", "name": "Depot", "demand": 0},
    {"id": "a", "name": "A", "demand": 5},
    {"id": "b", "name": "B", "demand": 5},
    {"id": "c", "name": "C", "demand": 4}
  ],
  "distanceMatrix": [[0,10,10,14],[10,0,5,9],[10,5,0,6],[14,9,6,0]],
  "timeMatrix": [[0,60,60,80],[60,0,30,50],[60,30,0,40],[80,50,40,0]],
  "vehicleCapacity": 10,
  "timeLimitSeconds": 5,
  "routeMode": "ROUND_TRIP"
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	project := "demo"
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Project-Id", project)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"projectId": project})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			var evt struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(m.Payload, &evt)
			if evt.Type == "run.completed" || evt.Type == "run.failed" {
				return
			}
		}
	}()

	// Submit a solve once the subscription is in place
	time.Sleep(300 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader([]byte(demoRequest)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project-Id", project)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var optResp struct {
		RunID  string `json:"runId"`
		Result struct {
			Success       bool    `json:"success"`
			TotalDistance float64 `json:"totalDistance"`
			Message       string  `json:"message"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&optResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("HTTP %d run=%s success=%v distance=%.0f %s", resp.StatusCode, optResp.RunID, optResp.Result.Success, optResp.Result.TotalDistance, optResp.Result.Message)

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
