package download

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kordia/kordia-go/internal/errors"
)

// Message types
const (
	MessageStatus       = "status"
	MessageProgress     = "progress"
	MessageNotification = "notification"
	MessagePlayback     = "playback"
	MessageProvenance   = "provenance"
)

// ProgressUpdate represents a progress update message
type ProgressUpdate struct {
	SongID         string    `json:"ytid"`
	Progress       int       `json:"progress"`
	BytesProcessed int64     `json:"bytes_processed"`
	TotalBytes     int64     `json:"total_bytes"`
	Speed          float64   `json:"speed"` // bytes per second
	Timestamp      time.Time `json:"timestamp"`
}

// StatusUpdate represents a status change message
type StatusUpdate struct {
	SongID    string    `json:"ytid"`
	Status    string    `json:"status"` // started, completed, failed
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is the envelope pushed to subscribers
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client is one subscriber, typically a websocket connection
type Client struct {
	ID       string
	SendChan chan []byte
	mu       sync.Mutex
	closed   bool
}

// NewClient creates a new client
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		SendChan: make(chan []byte, 256),
	}
}

// Send queues data for the client, dropping it when the client is slow
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.SendChan <- data:
		return true
	default:
		return false
	}
}

// Close closes the client's send channel
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.SendChan)
	}
}

// Notifier fans download progress, playback state and user notifications
// out to subscribers. It implements errors.Notifier.
type Notifier struct {
	clients   map[string]*Client
	broadcast chan *Message
	done      chan struct{}
	stopOnce  sync.Once
	mu        sync.RWMutex

	statsMu      sync.Mutex
	started      map[string]time.Time
	successCount int
	failureCount int

	recentMu sync.RWMutex
	recent   []errors.Notification
}

const recentLimit = 50

// NewNotifier creates a new notifier
func NewNotifier() *Notifier {
	return &Notifier{
		clients:   make(map[string]*Client),
		broadcast: make(chan *Message, 256),
		done:      make(chan struct{}),
		started:   make(map[string]time.Time),
	}
}

// Start runs the broadcast loop until Stop
func (n *Notifier) Start() {
	go n.run()
}

// Stop ends the broadcast loop and disconnects every client
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.done)
		n.mu.Lock()
		for id, c := range n.clients {
			c.Close()
			delete(n.clients, id)
		}
		n.mu.Unlock()
	})
}

func (n *Notifier) run() {
	for {
		select {
		case <-n.done:
			return
		case message := <-n.broadcast:
			n.broadcastMessage(message)
		}
	}
}

func (n *Notifier) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	n.mu.RLock()
	for _, client := range n.clients {
		client.Send(data)
	}
	n.mu.RUnlock()
}

// Register adds a subscriber
func (n *Notifier) Register(client *Client) {
	n.mu.Lock()
	n.clients[client.ID] = client
	n.mu.Unlock()
}

// Unregister removes a subscriber and closes its channel
func (n *Notifier) Unregister(client *Client) {
	n.mu.Lock()
	if _, ok := n.clients[client.ID]; ok {
		delete(n.clients, client.ID)
		client.Close()
	}
	n.mu.Unlock()
}

// GetClientCount returns the number of connected clients
func (n *Notifier) GetClientCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// Publish queues an arbitrary message. Messages are dropped when the
// broadcast buffer is full.
func (n *Notifier) Publish(messageType string, payload interface{}) {
	select {
	case n.broadcast <- &Message{Type: messageType, Payload: payload}:
	default:
	}
}

// Notify implements errors.Notifier
func (n *Notifier) Notify(note errors.Notification) {
	n.recentMu.Lock()
	n.recent = append(n.recent, note)
	if len(n.recent) > recentLimit {
		n.recent = n.recent[len(n.recent)-recentLimit:]
	}
	n.recentMu.Unlock()

	n.Publish(MessageNotification, note)
}

// Recent returns the latest notifications, oldest first
func (n *Notifier) Recent() []errors.Notification {
	n.recentMu.RLock()
	defer n.recentMu.RUnlock()
	return append([]errors.Notification(nil), n.recent...)
}

// NotifyStarted notifies that a download has started
func (n *Notifier) NotifyStarted(songID string) {
	now := time.Now()
	n.statsMu.Lock()
	n.started[songID] = now
	n.statsMu.Unlock()

	n.Publish(MessageStatus, &StatusUpdate{SongID: songID, Status: "started", Timestamp: now})
}

// NotifyProgress notifies progress for a download
func (n *Notifier) NotifyProgress(songID string, bytesProcessed, totalBytes int64) {
	now := time.Now()

	n.statsMu.Lock()
	var speed float64
	if start, ok := n.started[songID]; ok {
		if elapsed := now.Sub(start).Seconds(); elapsed > 0 {
			speed = float64(bytesProcessed) / elapsed
		}
	}
	n.statsMu.Unlock()

	progress := 0
	if totalBytes > 0 {
		progress = int(bytesProcessed * 100 / totalBytes)
	}

	n.Publish(MessageProgress, &ProgressUpdate{
		SongID:         songID,
		Progress:       progress,
		BytesProcessed: bytesProcessed,
		TotalBytes:     totalBytes,
		Speed:          speed,
		Timestamp:      now,
	})
}

// NotifyCompleted notifies that a download has completed
func (n *Notifier) NotifyCompleted(songID string) {
	n.statsMu.Lock()
	delete(n.started, songID)
	n.successCount++
	n.statsMu.Unlock()

	n.Publish(MessageStatus, &StatusUpdate{SongID: songID, Status: "completed", Timestamp: time.Now()})
}

// NotifyFailed notifies that a download has failed
func (n *Notifier) NotifyFailed(songID string, err error) {
	n.statsMu.Lock()
	delete(n.started, songID)
	n.failureCount++
	n.statsMu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	n.Publish(MessageStatus, &StatusUpdate{SongID: songID, Status: "failed", Error: msg, Timestamp: time.Now()})
}

// Stats summarises downloads seen by the notifier
type Stats struct {
	Active    int `json:"active"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// GetStats returns overall download statistics
func (n *Notifier) GetStats() Stats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	return Stats{Active: len(n.started), Succeeded: n.successCount, Failed: n.failureCount}
}

// FormatSpeed formats speed in human-readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 1024 {
		return "< 1 KB/s"
	} else if bytesPerSecond < 1024*1024 {
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	}
	return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
}

// FormatBytes formats a byte count in human-readable format
func FormatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
	return fmt.Sprintf("%.2f GB", float64(n)/(1024*1024*1024))
}
