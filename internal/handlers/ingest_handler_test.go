package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainConnected consumes the subscribe-time acknowledgement frame.
func drainConnected(t *testing.T, conn *realtime.Connection) {
	t.Helper()
	select {
	case f := <-conn.Frames():
		require.Equal(t, "connected", f.Event)
	case <-time.After(time.Second):
		t.Fatal("no connected frame")
	}
}

func nextFrame(t *testing.T, conn *realtime.Connection) realtime.Frame {
	t.Helper()
	select {
	case f := <-conn.Frames():
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return realtime.Frame{}
	}
}

func TestIngest_SingleEventPersistedAndBroadcast(t *testing.T) {
	e := newTestEcho()
	events := newMemEventRepo()
	hub := realtime.NewHub(nil)
	defer hub.Stop()
	h := NewIngestHandler(events, hub)

	conn := hub.Subscribe(1, models.RoleAdmin)
	drainConnected(t, conn)

	body := `{
		"source_agent": "billing-agent",
		"category": "billing",
		"type": "invoice_overdue",
		"title": "Invoice overdue",
		"message": "Invoice #881 is 14 days overdue"
	}`
	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/service/notifications", body, nil)
	require.NoError(t, h.Ingest(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Notification models.NotificationEvent `json:"notification"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotZero(t, resp.Data.Notification.ID)
	assert.Equal(t, models.AudienceAdmins, resp.Data.Notification.Audience, "audience defaults to admins")
	assert.Equal(t, models.PriorityNormal, resp.Data.Notification.Priority)

	f := nextFrame(t, conn)
	assert.Equal(t, "notification", f.Event)
	delivered, ok := f.Data.(*models.NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, "invoice_overdue", delivered.Type)
}

func TestIngest_CamelCaseAliasesAccepted(t *testing.T) {
	e := newTestEcho()
	events := newMemEventRepo()
	hub := realtime.NewHub(nil)
	defer hub.Stop()
	h := NewIngestHandler(events, hub)

	body := `{
		"sourceAgent": "crm-agent",
		"category": "training",
		"type": "session_booked",
		"title": "Session booked",
		"message": "A new session was booked",
		"actionRequired": true,
		"actionKind": "confirm_session"
	}`
	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/service/notifications", body, nil)
	require.NoError(t, h.Ingest(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	stored, err := events.GetByID(1)
	require.NoError(t, err)
	assert.Equal(t, "crm-agent", stored.SourceAgent)
	assert.True(t, stored.ActionRequired)
	assert.Equal(t, "confirm_session", stored.ActionKind)
}

func TestIngest_InvalidPayloadRejected(t *testing.T) {
	e := newTestEcho()
	hub := realtime.NewHub(nil)
	defer hub.Stop()
	h := NewIngestHandler(newMemEventRepo(), hub)

	c, _ := newJSONContext(e, http.MethodPost, "/api/v1/service/notifications", `{"title": "no type"}`, nil)
	err := h.Ingest(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	c2, _ := newJSONContext(e, http.MethodPost, "/api/v1/service/notifications", `not json`, nil)
	err = h.Ingest(c2)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))
}

func TestIngest_BatchIsolatesFailures(t *testing.T) {
	e := newTestEcho()
	events := newMemEventRepo()
	hub := realtime.NewHub(nil)
	defer hub.Stop()
	h := NewIngestHandler(events, hub)

	body := `{"batch": [
		{"source_agent": "a", "category": "billing", "type": "t1", "title": "ok 1", "message": "m"},
		{"title": "missing required fields"},
		{"source_agent": "a", "category": "billing", "type": "t2", "title": "ok 2", "message": "m", "priority": "bogus"},
		{"source_agent": "a", "category": "billing", "type": "t3", "title": "ok 3", "message": "m"}
	]}`
	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/service/notifications", body, nil)
	require.NoError(t, h.Ingest(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			CreatedCount int              `json:"created_count"`
			FailedCount  int              `json:"failed_count"`
			Errors       []map[string]any `json:"errors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.CreatedCount)
	assert.Equal(t, 2, resp.Data.FailedCount)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, float64(1), resp.Data.Errors[0]["index"])
	assert.Equal(t, float64(2), resp.Data.Errors[1]["index"])
}

func TestIngest_EmptyBatchSucceeds(t *testing.T) {
	e := newTestEcho()
	hub := realtime.NewHub(nil)
	defer hub.Stop()
	h := NewIngestHandler(newMemEventRepo(), hub)

	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/service/notifications", `{"batch": []}`, nil)
	require.NoError(t, h.Ingest(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			CreatedCount int `json:"created_count"`
			FailedCount  int `json:"failed_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Data.CreatedCount)
	assert.Zero(t, resp.Data.FailedCount)
}
