// Package logging: real-time log streaming for the ops dashboard.
package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LogEntry represents a single log entry sent to a streaming client.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	TenantID  string `json:"tenantId,omitempty"`
}

// StreamClient is a single connected log stream consumer.
type StreamClient struct {
	id      string
	Channel chan []byte
	filters StreamFilters
}

// StreamFilters restricts which entries a client receives.
type StreamFilters struct {
	Channel Channel
	Level   slog.Level
}

// StreamBroadcaster fans log entries out to connected stream clients.
type StreamBroadcaster struct {
	clients    map[*StreamClient]bool
	register   chan *StreamClient
	unregister chan *StreamClient
	broadcast  chan []byte
	mu         sync.RWMutex
	stop       chan struct{}
}

var (
	streamBroadcaster *StreamBroadcaster
	streamOnce        sync.Once
)

// GetStreamBroadcaster initializes and returns the singleton broadcaster.
func GetStreamBroadcaster() *StreamBroadcaster {
	streamOnce.Do(func() {
		streamBroadcaster = &StreamBroadcaster{
			clients:    make(map[*StreamClient]bool),
			register:   make(chan *StreamClient),
			unregister: make(chan *StreamClient),
			broadcast:  make(chan []byte, 256),
			stop:       make(chan struct{}),
		}
		go streamBroadcaster.run()
	})
	return streamBroadcaster
}

func (b *StreamBroadcaster) run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Channel)
			}
			b.mu.Unlock()
		case message := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.Channel <- message:
				default:
					// Slow consumer; drop rather than stall the fan-out.
				}
			}
			b.mu.RUnlock()
		case <-b.stop:
			return
		}
	}
}

func (c *StreamClient) wants(message []byte) bool {
	if c.filters.Channel == "" {
		return true
	}
	var entry LogEntry
	if err := json.Unmarshal(message, &entry); err != nil {
		return false
	}
	return entry.Channel == string(c.filters.Channel)
}

// SubmitLog queues a log entry for broadcast without blocking the caller.
func (b *StreamBroadcaster) SubmitLog(entry LogEntry) {
	message, err := json.Marshal(entry)
	if err != nil {
		return
	}

	select {
	case b.broadcast <- message:
	default:
		// Broadcast channel full under extreme logging load; drop the entry.
		fmt.Fprintln(os.Stderr, "log stream broadcaster full, entry dropped")
	}
}

// NewClient creates a new stream client with the given filters.
func (b *StreamBroadcaster) NewClient(filters StreamFilters) *StreamClient {
	return &StreamClient{
		id:      fmt.Sprintf("%d", time.Now().UnixNano()),
		Channel: make(chan []byte, 100),
		filters: filters,
	}
}

// RegisterClient adds a client to the fan-out set.
func (b *StreamBroadcaster) RegisterClient(client *StreamClient) {
	b.register <- client
}

// UnregisterClient removes a client from the fan-out set.
func (b *StreamBroadcaster) UnregisterClient(client *StreamClient) {
	b.unregister <- client
}

// Shutdown stops the broadcaster loop.
func (b *StreamBroadcaster) Shutdown() {
	close(b.stop)
}

// StreamWriter is an io.Writer that forwards structured log lines to the
// stream broadcaster.
type StreamWriter struct {
	broadcaster *StreamBroadcaster
}

// NewStreamWriter creates a writer bound to the singleton broadcaster.
func NewStreamWriter() *StreamWriter {
	return &StreamWriter{broadcaster: GetStreamBroadcaster()}
}

// Write parses a JSON log line and submits it for streaming.
func (w *StreamWriter) Write(p []byte) (n int, err error) {
	var rawLog map[string]any
	if err := json.Unmarshal(p, &rawLog); err != nil {
		return len(p), nil
	}

	entry := LogEntry{
		Timestamp: getString(rawLog, "time"),
		Level:     getString(rawLog, "level"),
		Channel:   getString(rawLog, "channel"),
		Message:   getString(rawLog, "msg"),
		TenantID:  getString(rawLog, "tenantId"),
	}

	go w.broadcaster.SubmitLog(entry)

	return len(p), nil
}

func getString(data map[string]any, key string) string {
	if val, ok := data[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return ""
}
