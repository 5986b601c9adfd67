package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Priority is the client-side treatment hint for a notification.
// It carries no delivery-ordering semantics.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Audience is the fan-out rule of a notification event.
type Audience string

const (
	AudienceAll          Audience = "all"
	AudienceAdmins       Audience = "admins"
	AudienceTrainers     Audience = "trainers"
	AudienceSales        Audience = "sales"
	AudienceSpecificUser Audience = "specific_user"
)

func (a Audience) Valid() bool {
	switch a {
	case AudienceAll, AudienceAdmins, AudienceTrainers, AudienceSales, AudienceSpecificUser:
		return true
	}
	return false
}

// Role returns the connection role a role-scoped audience maps to.
// Empty for "all" and "specific_user", which do not filter by role.
func (a Audience) Role() string {
	switch a {
	case AudienceAdmins:
		return RoleAdmin
	case AudienceTrainers:
		return RoleTrainer
	case AudienceSales:
		return RoleSales
	}
	return ""
}

// AudienceForRole returns the role-scoped audience matching a connection role.
func AudienceForRole(role string) Audience {
	switch role {
	case RoleAdmin:
		return AudienceAdmins
	case RoleTrainer:
		return AudienceTrainers
	case RoleSales:
		return AudienceSales
	}
	return ""
}

// JSONMap is an arbitrary metadata bag persisted as a JSONB column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("unsupported type %T for JSONMap", value)
}

// NotificationEvent is the unit broadcast to connected clients (PostgreSQL)
type NotificationEvent struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	SourceAgent    string     `json:"source_agent" gorm:"size:100;index"`
	Category       string     `json:"category" gorm:"size:50"`
	Type           string     `json:"type" gorm:"size:50;index"`
	Priority       Priority   `json:"priority" gorm:"size:10;default:normal"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Audience       Audience   `json:"audience" gorm:"size:20;index"`
	TargetUserID   *uint      `json:"target_user_id,omitempty" gorm:"index"`
	DeepLink       string     `json:"deep_link,omitempty"`
	ActionRequired bool       `json:"action_required" gorm:"default:false"`
	ActionKind     string     `json:"action_kind,omitempty" gorm:"size:100"`
	Metadata       JSONMap    `json:"metadata,omitempty" gorm:"type:jsonb"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsRead         bool       `json:"is_read" gorm:"default:false;index"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	ResponseStatus string     `json:"response_status,omitempty" gorm:"size:20"`
	ResponseData   JSONMap    `json:"response_data,omitempty" gorm:"type:jsonb"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
}

func (NotificationEvent) TableName() string { return "notification_events" }
