package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/formadex/crm-backend/internal/models"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	backlogLimit             = 10
	outcomeBuffer            = 16
)

// Outcome statuses carried on the action_completed frame.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePending = "pending"
)

// ActionOutcome is the result of an asynchronous action, republished to
// whichever client is waiting on its correlation identity.
type ActionOutcome struct {
	Ref        models.CorrelationRef
	ActionKind string
	Status     string
	Data       models.JSONMap
	Error      string
	TargetRole string // empty = unfiltered
}

func (o ActionOutcome) framePayload() map[string]any {
	p := map[string]any{
		"action_kind": o.ActionKind,
		"status":      o.Status,
	}
	if id, ok := o.Ref.EventID(); ok {
		p["event_id"] = id
	}
	if token, ok := o.Ref.Token(); ok {
		p["correlation_token"] = token
	}
	if o.Data != nil {
		p["data"] = o.Data
	}
	if o.Error != "" {
		p["error"] = o.Error
	}
	return p
}

// BacklogSource supplies the recent-unread backlog sent on subscribe.
type BacklogSource interface {
	RecentUnread(userID uint, role string, limit int) ([]models.NotificationEvent, error)
	UnreadCount(userID uint, role string) (int64, error)
}

// Hub is the in-memory registry of open subscriptions. One instance lives
// for the life of the server process; it is not shared across processes.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	outcomes map[uint64]chan ActionOutcome
	nextSub  uint64

	backlog        BacklogSource // may be nil
	heartbeatEvery time.Duration
	stop           chan struct{}
	stopOnce       sync.Once
}

// NewHub constructs the connection registry. backlog may be nil when no
// subscribe-time replay is wanted.
func NewHub(backlog BacklogSource) *Hub {
	return &Hub{
		conns:          make(map[string]*Connection),
		outcomes:       make(map[uint64]chan ActionOutcome),
		backlog:        backlog,
		heartbeatEvery: defaultHeartbeatInterval,
		stop:           make(chan struct{}),
	}
}

// Start launches the heartbeat loop. Call Stop to shut the hub down.
func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })

	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for id, c := range h.conns {
		conns = append(conns, c)
		delete(h.conns, id)
	}
	for id, ch := range h.outcomes {
		close(ch)
		delete(h.outcomes, id)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) run() {
	ticker := time.NewTicker(h.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.heartbeat()
		case <-h.stop:
			return
		}
	}
}

// Subscribe registers a new connection and immediately queues the connected
// acknowledgement, a small backlog of recent unread events and the unread
// counter.
func (h *Hub) Subscribe(userID uint, role string) *Connection {
	conn := newConnection(userID, role)

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	// The buffer is empty at this point, these cannot fail.
	conn.enqueue(Frame{Event: "connected", Data: map[string]any{
		"connection_id": conn.ID,
		"connected_at":  conn.ConnectedAt,
	}})

	if h.backlog != nil {
		events, err := h.backlog.RecentUnread(userID, role, backlogLimit)
		if err != nil {
			log.Printf("hub: backlog load failed for %s: %v", conn.ID, err)
		} else {
			// Oldest first so the client renders them in arrival order.
			// Pointer payload, same shape Publish sends.
			for i := len(events) - 1; i >= 0; i-- {
				conn.enqueue(Frame{Event: "notification", Data: &events[i]})
			}
		}
		if count, err := h.backlog.UnreadCount(userID, role); err == nil {
			conn.enqueue(Frame{Event: "count", Data: map[string]any{"unread": count}})
		}
	}

	return conn
}

// Unsubscribe removes a connection. Safe to call for an already-removed id.
func (h *Hub) Unsubscribe(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	delete(h.conns, connID)
	h.mu.Unlock()

	if ok {
		conn.close()
	}
}

// ConnectionCount reports the number of open subscriptions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Publish fans an event out to every connection its audience rule matches.
// Delivery is per-connection and independent: a failed enqueue removes only
// that connection, and Publish itself never fails.
func (h *Hub) Publish(event *models.NotificationEvent) {
	for _, conn := range h.snapshot() {
		if !audienceMatches(conn, event) {
			continue
		}
		if err := conn.enqueue(Frame{Event: "notification", Data: event}); err != nil {
			h.prune(conn, err)
		}
	}
}

func audienceMatches(c *Connection, e *models.NotificationEvent) bool {
	switch e.Audience {
	case models.AudienceAll:
		return true
	case models.AudienceSpecificUser:
		return e.TargetUserID != nil && c.UserID == *e.TargetUserID
	default:
		return e.Audience.Role() == c.Role
	}
}

// PublishActionOutcome republishes an action's result, filtered by role only
// (empty role = every connection), and feeds the in-process outcome
// subscribers used by waiters.
func (h *Hub) PublishActionOutcome(out ActionOutcome) {
	// Sends stay under the read lock so an unsubscribe cannot close a feed
	// mid-send. They are non-blocking, so the lock is held only briefly.
	h.mu.RLock()
	for _, ch := range h.outcomes {
		select {
		case ch <- out:
		default:
			// Slow outcome subscriber, drop. Waiters time out on their own.
		}
	}
	h.mu.RUnlock()

	frame := Frame{Event: "action_completed", Data: out.framePayload()}
	for _, conn := range h.snapshot() {
		if out.TargetRole != "" && conn.Role != out.TargetRole {
			continue
		}
		if err := conn.enqueue(frame); err != nil {
			h.prune(conn, err)
		}
	}
}

// SubscribeOutcomes opens an in-process feed of action outcomes. Used by
// OutcomeWaiter; callers must UnsubscribeOutcomes with the returned id.
func (h *Hub) SubscribeOutcomes() (uint64, <-chan ActionOutcome) {
	ch := make(chan ActionOutcome, outcomeBuffer)
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.outcomes[id] = ch
	h.mu.Unlock()
	return id, ch
}

// UnsubscribeOutcomes removes an outcome feed; idempotent.
func (h *Hub) UnsubscribeOutcomes(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.outcomes[id]; ok {
		close(ch)
		delete(h.outcomes, id)
	}
}

// heartbeat writes a comment frame to every connection. An enqueue failure
// is the hub's only liveness signal for silently-dropped peers.
func (h *Hub) heartbeat() {
	now := time.Now()
	for _, conn := range h.snapshot() {
		if err := conn.enqueue(Frame{}); err != nil {
			h.prune(conn, err)
			continue
		}
		conn.LastHeartbeat = now
	}
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) prune(conn *Connection, err error) {
	log.Printf("hub: removing dead connection %s (user=%d role=%s): %v", conn.ID, conn.UserID, conn.Role, err)
	h.Unsubscribe(conn.ID)
}
