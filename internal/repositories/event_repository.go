package repositories

import (
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"gorm.io/gorm"
)

// EventRepository defines the interface for notification event operations
type EventRepository interface {
	Create(event *models.NotificationEvent) error
	GetByID(id uint) (*models.NotificationEvent, error)
	RecentUnread(userID uint, role string, limit int) ([]models.NotificationEvent, error)
	GetVisible(userID uint, role string, page, limit int) ([]models.NotificationEvent, int64, error)
	UnreadCount(userID uint, role string) (int64, error)
	MarkAsRead(id uint) error
	MarkAllAsRead(userID uint, role string) error
	MergeOutcome(id uint, status string, data models.JSONMap) error
}

type postgresEventRepository struct {
	db *gorm.DB
}

func NewPostgresEventRepository(db *gorm.DB) EventRepository {
	return &postgresEventRepository{db: db}
}

func (r *postgresEventRepository) Create(event *models.NotificationEvent) error {
	return r.db.Create(event).Error
}

func (r *postgresEventRepository) GetByID(id uint) (*models.NotificationEvent, error) {
	var event models.NotificationEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// visibleTo scopes a query to the events a user should see: broadcast
// events, events for their role, and events targeted at them directly.
func (r *postgresEventRepository) visibleTo(userID uint, role string) *gorm.DB {
	return r.db.Model(&models.NotificationEvent{}).
		Where("audience = ? OR audience = ? OR (audience = ? AND target_user_id = ?)",
			models.AudienceAll, models.AudienceForRole(role), models.AudienceSpecificUser, userID)
}

func (r *postgresEventRepository) RecentUnread(userID uint, role string, limit int) ([]models.NotificationEvent, error) {
	var events []models.NotificationEvent
	err := r.visibleTo(userID, role).
		Where("is_read = false").
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *postgresEventRepository) GetVisible(userID uint, role string, page, limit int) ([]models.NotificationEvent, int64, error) {
	var events []models.NotificationEvent
	var total int64

	if err := r.visibleTo(userID, role).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := r.visibleTo(userID, role).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error

	return events, total, err
}

func (r *postgresEventRepository) UnreadCount(userID uint, role string) (int64, error) {
	var count int64
	err := r.visibleTo(userID, role).Where("is_read = false").Count(&count).Error
	return count, err
}

func (r *postgresEventRepository) MarkAsRead(id uint) error {
	return r.db.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()}).Error
}

func (r *postgresEventRepository) MarkAllAsRead(userID uint, role string) error {
	return r.visibleTo(userID, role).
		Where("is_read = false").
		Updates(map[string]any{"is_read": true, "read_at": time.Now()}).Error
}

// MergeOutcome writes an action's terminal outcome into the event it was
// announced by. Called by the correlation resolver in legacy mode.
func (r *postgresEventRepository) MergeOutcome(id uint, status string, data models.JSONMap) error {
	return r.db.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"response_status": status,
			"response_data":   data,
			"responded_at":    time.Now(),
		}).Error
}
