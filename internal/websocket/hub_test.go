package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/facelessreel/api/internal/model"
)

func receive(t *testing.T, client *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-client.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return nil
}

func TestHub_BroadcastToJobSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	a := &Client{JobID: "job-a", Send: make(chan []byte, 8)}
	b := &Client{JobID: "job-b", Send: make(chan []byte, 8)}
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastProgress("job-a", 30, model.JobStatusProcessing, "Generating voiceover...")
	msg := receive(t, a)
	if msg["type"] != model.WSMessageTypeProgress || msg["progress"] != float64(30) || msg["message"] != "Generating voiceover..." {
		t.Fatalf("progress message = %v", msg)
	}

	hub.BroadcastComplete("job-a", "/api/download/job-a")
	if msg := receive(t, a); msg["type"] != model.WSMessageTypeComplete || msg["videoUrl"] != "/api/download/job-a" {
		t.Fatalf("complete message = %v", msg)
	}

	hub.BroadcastError("job-b", "JOB_FAILED", "Voiceover generation failed: boom")
	msg = receive(t, b)
	errBody, _ := msg["error"].(map[string]interface{})
	if msg["type"] != model.WSMessageTypeError || errBody["code"] != "JOB_FAILED" {
		t.Fatalf("error message = %v", msg)
	}

	select {
	case extra := <-a.Send:
		t.Fatalf("job-a received job-b message: %s", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	client := &Client{JobID: "job", Send: make(chan []byte, 1)}
	hub.Register(client)
	if hub.Subscribers("job") != 1 {
		t.Fatalf("subscribers = %d", hub.Subscribers("job"))
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if _, ok := <-client.Send; ok {
		t.Fatal("send channel still open")
	}
	if hub.Subscribers("job") != 0 {
		t.Fatalf("subscribers = %d after unregister", hub.Subscribers("job"))
	}
	if hub.sendTo(client, []byte("x")) {
		t.Fatal("sendTo succeeded for unregistered client")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{JobID: "job", Send: make(chan []byte, 1)}
	hub.Register(slow)

	hub.deliver(&BroadcastMessage{JobID: "job", Message: []byte("1")})
	hub.deliver(&BroadcastMessage{JobID: "job", Message: []byte("2")})

	if hub.Subscribers("job") != 0 {
		t.Fatal("slow client still registered")
	}
	<-slow.Send
	if _, ok := <-slow.Send; ok {
		t.Fatal("slow client channel not closed")
	}
	hub.Unregister(slow)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.BroadcastProgress("job", 10, model.JobStatusProcessing, "x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked without a running hub")
	}
}

func TestStatusMessage(t *testing.T) {
	data, err := statusMessage(model.JobView{JobID: "abc", Status: model.JobStatusQueued})
	if err != nil {
		t.Fatalf("statusMessage: %v", err)
	}
	var msg struct {
		Type string `json:"type"`
		Job  struct {
			JobID    string  `json:"job_id"`
			VideoURL *string `json:"video_url"`
		} `json:"job"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "status" || msg.Job.JobID != "abc" || msg.Job.VideoURL != nil {
		t.Fatalf("status message = %s", data)
	}
}
