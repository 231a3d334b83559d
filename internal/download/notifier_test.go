package download

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kordia/kordia-go/internal/errors"
)

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.SendChan:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for message")
	}
	return Message{}
}

func TestNotifierBroadcastsStatus(t *testing.T) {
	n := NewNotifier()
	n.Start()
	defer n.Stop()

	client := NewClient("c1")
	n.Register(client)

	n.NotifyStarted("song-1")
	msg := receive(t, client)
	if msg.Type != MessageStatus {
		t.Errorf("Expected status message, got %s", msg.Type)
	}

	n.NotifyFailed("song-1", fmt.Errorf("boom"))
	msg = receive(t, client)
	payload := msg.Payload.(map[string]interface{})
	if payload["status"] != "failed" || payload["error"] != "boom" {
		t.Errorf("Unexpected payload %v", payload)
	}

	stats := n.GetStats()
	if stats.Failed != 1 || stats.Active != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestNotifierImplementsErrorsNotifier(t *testing.T) {
	var _ errors.Notifier = NewNotifier()

	n := NewNotifier()
	for i := 0; i < recentLimit+5; i++ {
		n.Notify(errors.Notification{Severity: errors.SeverityInfo, Title: fmt.Sprintf("n%d", i)})
	}

	recent := n.Recent()
	if len(recent) != recentLimit {
		t.Fatalf("Expected %d recent notifications, got %d", recentLimit, len(recent))
	}
	if recent[len(recent)-1].Title != fmt.Sprintf("n%d", recentLimit+4) {
		t.Errorf("Expected newest notification last, got %s", recent[len(recent)-1].Title)
	}
}

func TestNotifierUnregisterClosesClient(t *testing.T) {
	n := NewNotifier()
	client := NewClient("c1")
	n.Register(client)
	n.Unregister(client)

	if n.GetClientCount() != 0 {
		t.Errorf("Expected no clients, got %d", n.GetClientCount())
	}
	if client.Send([]byte("x")) {
		t.Error("Expected send on closed client to fail")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatSpeed(2048); got != "2.0 KB/s" {
		t.Errorf("FormatSpeed(2048) = %s", got)
	}
	if got := FormatBytes(3 * 1024 * 1024); got != "3.0 MB" {
		t.Errorf("FormatBytes(3MB) = %s", got)
	}
}
