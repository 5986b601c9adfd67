package realtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// frameBuffer is the per-connection frame channel capacity. A connection
// that falls this far behind is treated as dead and pruned.
const frameBuffer = 64

var (
	errConnectionClosed = errors.New("connection closed")
	errBufferFull       = errors.New("frame buffer full")
)

// Frame is one wire frame of the event stream. An empty Event name marks a
// comment frame, used as a heartbeat.
type Frame struct {
	Event string
	Data  any
}

// Connection is one open subscription, owned exclusively by the Hub.
type Connection struct {
	ID            string
	UserID        uint // 0 when the subscriber has no user identity
	Role          string
	ConnectedAt   time.Time
	LastHeartbeat time.Time

	mu     sync.Mutex
	closed bool
	frames chan Frame
}

func newConnection(userID uint, role string) *Connection {
	now := time.Now()
	return &Connection{
		// Unique within this hub's lifetime only; not stable across restarts.
		ID:            fmt.Sprintf("%d-%d-%s", userID, now.UnixNano(), uuid.NewString()[:8]),
		UserID:        userID,
		Role:          role,
		ConnectedAt:   now,
		LastHeartbeat: now,
		frames:        make(chan Frame, frameBuffer),
	}
}

// Frames is the stream the transport handler drains and writes to the peer.
// It is closed when the connection is removed from the hub.
func (c *Connection) Frames() <-chan Frame {
	return c.frames
}

// enqueue hands a frame to the connection without blocking. A full buffer or
// a closed connection returns an error; the hub converts either into removal.
func (c *Connection) enqueue(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.frames <- f:
		return nil
	default:
		return errBufferFull
	}
}

// close is idempotent; the frame channel is closed exactly once.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
}
