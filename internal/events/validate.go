package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/blok13/clanportal/internal/models"
)

const maxTitleLen = 200

// validateEvent checks every constrained field of a complete event definition.
func validateEvent(e *models.Event) error {
	if err := validateTitle(e.Title); err != nil {
		return err
	}
	if err := validateCapacity(e.Capacity); err != nil {
		return err
	}
	if err := validateWindow(e.StartsAt, e.EndsAt); err != nil {
		return err
	}
	return e.Requirements.Validate("requirements")
}

// validatePatch re-validates the fields a patch touches against the merged result.
func validatePatch(p models.EventPatch, merged *models.Event) error {
	if p.Title != nil {
		if err := validateTitle(merged.Title); err != nil {
			return err
		}
	}
	if p.Capacity != nil {
		if err := validateCapacity(merged.Capacity); err != nil {
			return err
		}
	}
	if p.StartsAt != nil || p.EndsAt != nil || p.ClearStartsAt || p.ClearEndsAt {
		if err := validateWindow(merged.StartsAt, merged.EndsAt); err != nil {
			return err
		}
	}
	if p.Requirements != nil {
		return merged.Requirements.Validate("requirements")
	}
	return nil
}

func validateTitle(title string) error {
	t := strings.TrimSpace(title)
	if t == "" {
		return models.NewValidationError("title", "is required")
	}
	if len(t) > maxTitleLen {
		return models.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	return nil
}

func validateCapacity(c int) error {
	if c < models.MinCapacity || c > models.MaxCapacity {
		return models.NewValidationError("capacity", fmt.Sprintf("must be between %d and %d", models.MinCapacity, models.MaxCapacity))
	}
	return nil
}

func validateWindow(start, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if !end.After(*start) {
		return models.NewValidationError("ends_at", "must be after starts_at")
	}
	return nil
}
