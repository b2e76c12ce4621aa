// Package stream fans job events out to live listeners over server-sent
// events and websockets.
package stream

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Maximum number of concurrent listeners allowed
	MaxConcurrentConnections = 5000
	// Buffer size for each client's message channel
	ClientChannelBuffer = 256
	// How often to send keep-alive messages
	KeepAliveInterval = 30 * time.Second
	// How often to cleanup dead connections
	CleanupInterval = 60 * time.Second
	// Buffer size for hub broadcast queue
	HubBroadcastBuffer = 2048
)

// Message is one event. JobID, when set, lets listeners subscribed to a single
// job receive only that job's events.
type Message struct {
	Type  string `json:"type"`
	Msg   string `json:"msg"`
	JobID string `json:"jobId,omitempty"`
}

type clientChan chan Message

// Client represents a connected listener.
type Client struct {
	ID           string
	Channel      clientChan
	JobID        string // empty receives every event
	LastSeen     int64  // Unix timestamp
	RemoteAddr   string
	UserAgent    string
	Connected    int64 // Unix timestamp when connected
	MessagesSent int64

	// mu orders sends against close so a removed client is never sent to.
	mu     sync.Mutex
	closed bool
}

// send delivers msg without blocking. It reports false when the client's
// queue is full or the client was closed.
func (c *Client) send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Channel <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Channel)
	}
}

func (c *Client) wants(msg Message) bool {
	return c.JobID == "" || msg.JobID == "" || msg.JobID == c.JobID
}

func (c *Client) touch() {
	atomic.StoreInt64(&c.LastSeen, time.Now().Unix())
}

// Hub tracks listeners and fans broadcasts out to them without ever blocking
// the producer.
type Hub struct {
	clients           sync.Map // map[clientChan]*Client
	activeCount       int64
	totalMessages     int64
	broadcast         chan Message
	droppedBroadcasts int64
	droppedClientMsgs int64
	rejectedConns     int64
	shutdown          chan struct{}
	shutdownOnce      sync.Once
}

// NewHub starts a hub's broadcast and cleanup loops.
func NewHub() *Hub {
	h := &Hub{
		shutdown:  make(chan struct{}),
		broadcast: make(chan Message, HubBroadcastBuffer),
	}
	go h.runBroadcastLoop()
	go h.cleanupRoutine()
	return h
}

var manager = NewHub()

// Default returns the process-wide hub used by the package-level functions.
func Default() *Hub { return manager }

// Stats returns current connection statistics.
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_connections":   atomic.LoadInt64(&h.activeCount),
		"total_messages":       atomic.LoadInt64(&h.totalMessages),
		"max_connections":      int64(MaxConcurrentConnections),
		"dropped_broadcasts":   atomic.LoadInt64(&h.droppedBroadcasts),
		"dropped_client_msgs":  atomic.LoadInt64(&h.droppedClientMsgs),
		"rejected_connections": atomic.LoadInt64(&h.rejectedConns),
	}
}

// Active reports the number of registered listeners.
func (h *Hub) Active() int64 {
	return atomic.LoadInt64(&h.activeCount)
}

// AddClient registers a listener. It returns nil when the hub is at capacity.
func (h *Hub) AddClient(c clientChan, jobID, remoteAddr, userAgent string) *Client {
	if atomic.LoadInt64(&h.activeCount) >= MaxConcurrentConnections {
		atomic.AddInt64(&h.rejectedConns, 1)
		log.Printf("Connection limit reached (%d), rejecting new client from %s", MaxConcurrentConnections, remoteAddr)
		return nil
	}

	now := time.Now()
	client := &Client{
		ID:         fmt.Sprintf("%d-%s", now.UnixNano(), remoteAddr),
		Channel:    c,
		JobID:      jobID,
		LastSeen:   now.Unix(),
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		Connected:  now.Unix(),
	}

	h.clients.Store(c, client)
	atomic.AddInt64(&h.activeCount, 1)

	log.Printf("Client connected: %s (total: %d)", client.ID, atomic.LoadInt64(&h.activeCount))
	return client
}

// RemoveClient unregisters a listener and closes its channel. Unknown
// channels are ignored.
func (h *Hub) RemoveClient(c clientChan) {
	v, ok := h.clients.LoadAndDelete(c)
	if !ok {
		return
	}
	client := v.(*Client)
	atomic.AddInt64(&h.activeCount, -1)
	client.close()
	log.Printf("Client disconnected: %s (total: %d)", client.ID, atomic.LoadInt64(&h.activeCount))
}

// Broadcast enqueues a message for fan-out. When the hub queue is full the
// message is dropped and counted.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		atomic.AddInt64(&h.droppedBroadcasts, 1)
	}
}

func (h *Hub) runBroadcastLoop() {
	for {
		select {
		case msg := <-h.broadcast:
			h.fanOut(msg)
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) fanOut(msg Message) {
	h.clients.Range(func(_, value any) bool {
		client := value.(*Client)
		if !client.wants(msg) {
			return true
		}
		if client.send(msg) {
			client.touch()
			atomic.AddInt64(&client.MessagesSent, 1)
			atomic.AddInt64(&h.totalMessages, 1)
		} else {
			// client queue full or already removed
			atomic.AddInt64(&h.droppedClientMsgs, 1)
		}
		return true
	})
}

func (h *Hub) cleanupRoutine() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupStaleConnections(time.Now())
		case <-h.shutdown:
			return
		}
	}
}

// cleanupStaleConnections removes clients not seen within two cleanup
// intervals of now. Handlers touch their client on every keep-alive, so only
// abandoned registrations go stale.
func (h *Hub) cleanupStaleConnections(now time.Time) int {
	staleThreshold := now.Unix() - int64(CleanupInterval.Seconds()*2)

	var stale []clientChan
	h.clients.Range(func(key, value any) bool {
		if atomic.LoadInt64(&value.(*Client).LastSeen) < staleThreshold {
			stale = append(stale, key.(clientChan))
		}
		return true
	})

	if len(stale) > 0 {
		log.Printf("Cleaning up %d stale connections", len(stale))
		for _, c := range stale {
			h.RemoveClient(c)
		}
	}
	return len(stale)
}

// Shutdown stops the hub loops and closes every listener.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
		h.clients.Range(func(key, _ any) bool {
			h.RemoveClient(key.(clientChan))
			return true
		})
		log.Println("Stream connection manager shutdown complete")
	})
}

// Broadcast enqueues msg on the default hub.
func Broadcast(msg Message) {
	manager.Broadcast(msg)
}

// GetConnectionStats returns the default hub's statistics.
func GetConnectionStats() map[string]interface{} {
	return manager.Stats()
}

// Shutdown shuts down the default hub.
func Shutdown() {
	manager.Shutdown()
}
