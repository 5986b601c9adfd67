package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/repositories"
	"github.com/formadex/crm-backend/internal/workflow"
	"github.com/formadex/crm-backend/validators"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validators.NewValidator()
	return e
}

// newJSONContext builds a request context the way the router would hand it to
// a handler, with claims already resolved by the JWT middleware.
func newJSONContext(e *echo.Echo, method, path, body string, claims *models.JwtCustomClaims) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if claims != nil {
		c.Set("user", claims)
	}
	return c, rec
}

func staffClaims(userID uint, role string) *models.JwtCustomClaims {
	return &models.JwtCustomClaims{
		UserID: userID,
		Email:  fmt.Sprintf("user%d@formadex.test", userID),
		Role:   role,
	}
}

// memLockRepo is an in-memory ActionLockRepository with the same uniqueness
// and terminal-transition semantics as the Postgres one.
type memLockRepo struct {
	mu    sync.Mutex
	locks map[string]*models.ActionLock
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{locks: make(map[string]*models.ActionLock)}
}

func (m *memLockRepo) Acquire(lock *models.ActionLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.locks {
		if l.SubjectType == lock.SubjectType && l.SubjectID == lock.SubjectID &&
			l.ActionKind == lock.ActionKind && l.Status == models.LockInProgress {
			return repositories.ErrLockHeld
		}
	}
	if lock.ID == "" {
		lock.ID = fmt.Sprintf("lock-%d", len(m.locks)+1)
	}
	active := true
	lock.Active = &active
	lock.Status = models.LockInProgress
	if lock.StartedAt.IsZero() {
		lock.StartedAt = time.Now()
	}
	cp := *lock
	m.locks[lock.ID] = &cp
	return nil
}

func (m *memLockRepo) InFlight(subjectType, subjectID, actionKind string) (*models.ActionLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.locks {
		if l.SubjectType == subjectType && l.SubjectID == subjectID &&
			l.ActionKind == actionKind && l.Status == models.LockInProgress {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memLockRepo) GetByID(id string) (*models.ActionLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *l
	return &cp, nil
}

func (m *memLockRepo) MarkDispatched(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[id]; ok && l.Status == models.LockInProgress {
		now := time.Now()
		l.DispatchedAt = &now
	}
	return nil
}

func (m *memLockRepo) Finish(ref models.CorrelationRef, status models.LockStatus, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.locks {
		if !lockMatchesRef(l, ref) {
			continue
		}
		return m.transition(l, status, errMsg), nil
	}
	return false, nil
}

func (m *memLockRepo) FinishByID(id string, status models.LockStatus, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		return false, nil
	}
	return m.transition(l, status, errMsg), nil
}

func (m *memLockRepo) transition(l *models.ActionLock, status models.LockStatus, errMsg string) bool {
	if l.Status != models.LockInProgress {
		return false
	}
	l.Status = status
	l.Active = nil
	now := time.Now()
	l.FinishedAt = &now
	if errMsg != "" {
		l.ErrorMessage = &errMsg
	}
	return true
}

func lockMatchesRef(l *models.ActionLock, ref models.CorrelationRef) bool {
	if id, ok := ref.EventID(); ok {
		return l.EventID != nil && *l.EventID == id
	}
	if token, ok := ref.Token(); ok {
		return l.CorrelationToken != nil && *l.CorrelationToken == token
	}
	return false
}

// recordingDispatcher captures DispatchAsync calls without touching any engine.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []*workflow.DispatchRequest
}

func (d *recordingDispatcher) DispatchAsync(lock *models.ActionLock, req *workflow.DispatchRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
}

func (d *recordingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// memEventRepo is an in-memory EventRepository sufficient for handler tests.
type memEventRepo struct {
	mu     sync.Mutex
	nextID uint
	events map[uint]*models.NotificationEvent

	createErr error
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{nextID: 1, events: make(map[uint]*models.NotificationEvent)}
}

func (m *memEventRepo) Create(event *models.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	event.ID = m.nextID
	m.nextID++
	event.CreatedAt = time.Now()
	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *memEventRepo) GetByID(id uint) (*models.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEventRepo) RecentUnread(userID uint, role string, limit int) ([]models.NotificationEvent, error) {
	return nil, nil
}

func (m *memEventRepo) GetVisible(userID uint, role string, page, limit int) ([]models.NotificationEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationEvent
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, int64(len(out)), nil
}

func (m *memEventRepo) UnreadCount(userID uint, role string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.events {
		if !e.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *memEventRepo) MarkAsRead(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		e.IsRead = true
		now := time.Now()
		e.ReadAt = &now
	}
	return nil
}

func (m *memEventRepo) MarkAllAsRead(userID uint, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		e.IsRead = true
	}
	return nil
}

func (m *memEventRepo) MergeOutcome(id uint, status string, data models.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.ResponseStatus = status
	e.ResponseData = data
	now := time.Now()
	e.RespondedAt = &now
	return nil
}

// httpStatus extracts the status from a handler's error return the way
// Echo's error handler would.
func httpStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if err == nil {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}
