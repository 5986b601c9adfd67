package repositories

import (
	"errors"
	"strings"
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrLockHeld signals that a (subject, action-kind) pair already has an
// operation in flight.
var ErrLockHeld = errors.New("an operation is already in progress for this subject")

// ActionLockRepository defines the interface for action lock operations.
// Acquire and the finish methods are the only writers; acquisition is a
// single conditional insert so concurrent triggers for the same pair cannot
// both succeed.
type ActionLockRepository interface {
	Acquire(lock *models.ActionLock) error
	InFlight(subjectType, subjectID, actionKind string) (*models.ActionLock, error)
	GetByID(id string) (*models.ActionLock, error)
	MarkDispatched(id string) error
	Finish(ref models.CorrelationRef, status models.LockStatus, errMsg string) (bool, error)
	FinishByID(id string, status models.LockStatus, errMsg string) (bool, error)
}

type postgresActionLockRepository struct {
	db *gorm.DB
}

func NewPostgresActionLockRepository(db *gorm.DB) ActionLockRepository {
	return &postgresActionLockRepository{db: db}
}

// Acquire inserts a new in-progress lock. Uniqueness of the in-flight pair
// is enforced by the uq_action_locks_inflight index, not by a prior read, so
// concurrent acquisitions race at the database and exactly one wins.
func (r *postgresActionLockRepository) Acquire(lock *models.ActionLock) error {
	if lock.ID == "" {
		lock.ID = uuid.NewString()
	}
	active := true
	lock.Active = &active
	lock.Status = models.LockInProgress
	if lock.StartedAt.IsZero() {
		lock.StartedAt = time.Now()
	}

	if err := r.db.Create(lock).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrLockHeld
		}
		return err
	}
	return nil
}

func (r *postgresActionLockRepository) InFlight(subjectType, subjectID, actionKind string) (*models.ActionLock, error) {
	var lock models.ActionLock
	err := r.db.
		Where("subject_type = ? AND subject_id = ? AND action_kind = ? AND status = ?",
			subjectType, subjectID, actionKind, models.LockInProgress).
		First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}

func (r *postgresActionLockRepository) GetByID(id string) (*models.ActionLock, error) {
	var lock models.ActionLock
	if err := r.db.Where("id = ?", id).First(&lock).Error; err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *postgresActionLockRepository) MarkDispatched(id string) error {
	return r.db.Model(&models.ActionLock{}).
		Where("id = ? AND status = ?", id, models.LockInProgress).
		Update("dispatched_at", time.Now()).Error
}

// Finish performs the terminal transition for the lock matching a
// correlation identity. The WHERE clause pins the current status, so a lock
// that is already terminal is left untouched and false is returned.
func (r *postgresActionLockRepository) Finish(ref models.CorrelationRef, status models.LockStatus, errMsg string) (bool, error) {
	if id, ok := ref.EventID(); ok {
		return r.finish(r.db.Where("event_id = ?", id), status, errMsg)
	}
	if token, ok := ref.Token(); ok {
		return r.finish(r.db.Where("correlation_token = ?", token), status, errMsg)
	}
	return false, errors.New("correlation reference is unset")
}

func (r *postgresActionLockRepository) FinishByID(id string, status models.LockStatus, errMsg string) (bool, error) {
	return r.finish(r.db.Where("id = ?", id), status, errMsg)
}

func (r *postgresActionLockRepository) finish(tx *gorm.DB, status models.LockStatus, errMsg string) (bool, error) {
	finished := time.Now()
	updates := map[string]any{
		"status":      status,
		"active":      nil,
		"finished_at": finished,
		"duration_ms": gorm.Expr("EXTRACT(EPOCH FROM (?::timestamptz - started_at)) * 1000", finished),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}

	res := tx.Model(&models.ActionLock{}).
		Where("status = ?", models.LockInProgress).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Raw driver errors when the dialector does not translate them.
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
