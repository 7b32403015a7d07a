// Package sse streams review session events to connected clients.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// writeTimeout bounds one write so a stale connection cannot stall
	// the broadcast fan-out.
	writeTimeout = 2 * time.Second

	// heartbeatInterval keeps idle connections from being reaped by
	// intermediaries.
	heartbeatInterval = 30 * time.Second
)

// client is one connected event-stream consumer.
type client struct {
	id      string
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}

	// writeMu serializes writes: broadcast fan-out goroutines and the
	// connection's own heartbeat share the same ResponseWriter.
	writeMu sync.Mutex
}

// send writes one frame and flushes it. Safe for concurrent use.
func (c *client) send(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write([]byte(frame)); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Broadcaster fans review events out to every connected client.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*client)}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends one event to all clients. Writes run concurrently;
// clients that error or exceed the write timeout are dropped.
func (b *Broadcaster) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE payload")
		return
	}
	frame := "data: " + string(data) + "\n\n"

	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	dead := make(chan string, len(targets))
	for _, c := range targets {
		select {
		case <-c.done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if !b.write(c, frame) {
				dead <- c.id
			}
		}(c)
	}
	wg.Wait()
	close(dead)

	for id := range dead {
		b.drop(id)
	}
}

// write delivers one frame, reporting false on error or timeout.
func (b *Broadcaster) write(c *client, frame string) bool {
	result := make(chan bool, 1)
	go func() {
		result <- c.send(frame) == nil
	}()

	select {
	case ok := <-result:
		return ok
	case <-time.After(writeTimeout):
		log.Warn().Str("client_id", c.id).Msg("SSE write timed out")
		return false
	case <-c.done:
		return true
	}
}

func (b *Broadcaster) add(w http.ResponseWriter) (*client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	c := &client{
		id:      fmt.Sprintf("client-%d", b.nextID),
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("client_id", c.id).Int("clients", total).Msg("SSE client connected")
	return c, nil
}

func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	total := len(b.clients)
	b.mu.Unlock()

	if ok {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		log.Debug().Str("client_id", id).Int("clients", total).Msg("SSE client disconnected")
	}
}

// ServeHTTP handles one event-stream connection, blocking until the
// client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	c, err := b.add(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.drop(c.id)

	if err := c.send(fmt.Sprintf("data: {\"type\":\"connected\",\"client_id\":%q}\n\n", c.id)); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			if err := c.send(": keepalive\n\n"); err != nil {
				return
			}
		}
	}
}
