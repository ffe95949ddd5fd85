package habit

import (
	"context"
	"fmt"

	"github.com/dukerupert/habitual/internal/dates"
	"github.com/dukerupert/habitual/internal/model"
)

// Normalize maps a requested entry value onto what is persisted. Values at or below
// zero mean "no entry for that day", so keep is false and the row must be absent.
func Normalize(value int) (normalized int, keep bool) {
	if value <= 0 {
		return 0, false
	}
	return value, true
}

// ToggleEntry sets the value recorded for habitID on date. A zero value removes the
// entry. It returns the stored entry, or nil when no row remains.
//
// The lookup and the write are separate statements. Two sessions toggling the same
// day concurrently can interleave: the last update wins, and a racing insert fails
// on the (habit_id, date) unique constraint.
func (s *Service) ToggleEntry(ctx context.Context, userID, habitID, date string, value int) (*model.Entry, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	if habitID == "" || date == "" {
		return nil, opError("Habit ID and date are required", ErrInvalid)
	}
	if _, err := dates.ParseDB(date); err != nil {
		return nil, opError("Invalid date", fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	h, err := s.habits.GetByID(userID, habitID)
	if err != nil {
		s.logger.ErrorContext(ctx, "toggle entry: get habit", "user_id", userID, "habit_id", habitID, "error", err)
		return nil, opError("Failed to update entry", err)
	}
	if h == nil {
		return nil, opError("Habit not found", ErrNotFound)
	}

	value, keep := Normalize(value)

	existing, err := s.entries.Get(userID, habitID, date)
	if err != nil {
		s.logger.ErrorContext(ctx, "toggle entry: lookup", "user_id", userID, "habit_id", habitID, "date", date, "error", err)
		return nil, opError("Failed to update entry", err)
	}

	switch {
	case existing != nil && !keep:
		if err := s.entries.Delete(userID, existing.ID); err != nil {
			s.logger.ErrorContext(ctx, "toggle entry: delete", "entry_id", existing.ID, "error", err)
			return nil, opError("Failed to delete entry", err)
		}
		return nil, nil

	case existing != nil:
		if err := s.entries.UpdateValue(userID, existing.ID, value); err != nil {
			s.logger.ErrorContext(ctx, "toggle entry: update", "entry_id", existing.ID, "error", err)
			return nil, opError("Failed to update entry", err)
		}
		existing.Value = value
		return existing, nil

	case keep:
		e, err := s.entries.Create(userID, habitID, date, value)
		if err != nil {
			s.logger.ErrorContext(ctx, "toggle entry: create", "user_id", userID, "habit_id", habitID, "date", date, "error", err)
			return nil, opError("Failed to create entry", err)
		}
		return e, nil

	default:
		return nil, nil
	}
}
