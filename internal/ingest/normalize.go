// Package ingest normalizes externally submitted event descriptions into
// the canonical NotificationEvent shape. The two trusted callers disagree on
// field casing (the scheduler posts snake_case, the workflow engine
// camelCase), so both spellings are accepted and coalesced before
// validation.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// camelCase aliases mapped to their canonical snake_case keys. The
// canonical spelling wins when both are present.
var fieldAliases = map[string]string{
	"sourceAgent":    "source_agent",
	"targetUserId":   "target_user_id",
	"actionRequired": "action_required",
	"actionKind":     "action_kind",
	"deepLink":       "deep_link",
	"expiresAt":      "expires_at",
}

// EventInput is the canonical submission shape after alias coalescing.
type EventInput struct {
	SourceAgent    string         `json:"source_agent" validate:"required"`
	Category       string         `json:"category" validate:"required"`
	Type           string         `json:"type" validate:"required"`
	Priority       string         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Title          string         `json:"title" validate:"required"`
	Message        string         `json:"message" validate:"required"`
	Audience       string         `json:"audience" validate:"omitempty,oneof=all admins trainers sales specific_user"`
	TargetUserID   *uint          `json:"target_user_id"`
	DeepLink       string         `json:"deep_link"`
	ActionRequired bool           `json:"action_required"`
	ActionKind     string         `json:"action_kind"`
	Metadata       models.JSONMap `json:"metadata"`
	ExpiresAt      *time.Time     `json:"expires_at"`
}

// Normalize coalesces field aliases, validates required fields, applies
// defaults (priority normal, audience admins) and returns the event ready to
// persist. It enforces the audience invariant: specific_user requires a
// target user.
func Normalize(raw json.RawMessage) (*models.NotificationEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	for alias, canonical := range fieldAliases {
		if v, ok := fields[alias]; ok {
			if _, exists := fields[canonical]; !exists {
				fields[canonical] = v
			}
			delete(fields, alias)
		}
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	var in EventInput
	if err := json.Unmarshal(merged, &in); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	if in.Priority == "" {
		in.Priority = string(models.PriorityNormal)
	}
	if in.Audience == "" {
		in.Audience = string(models.AudienceAdmins)
	}
	if in.Audience == string(models.AudienceSpecificUser) && in.TargetUserID == nil {
		return nil, errors.New("target_user_id is required when audience is specific_user")
	}

	return &models.NotificationEvent{
		SourceAgent:    in.SourceAgent,
		Category:       in.Category,
		Type:           in.Type,
		Priority:       models.Priority(in.Priority),
		Title:          in.Title,
		Message:        in.Message,
		Audience:       models.Audience(in.Audience),
		TargetUserID:   in.TargetUserID,
		DeepLink:       in.DeepLink,
		ActionRequired: in.ActionRequired,
		ActionKind:     in.ActionKind,
		Metadata:       in.Metadata,
		ExpiresAt:      in.ExpiresAt,
	}, nil
}
