// Package habit is the data access layer for habits and their daily entries.
//
// Every operation takes the caller's user id explicitly. Reads degrade to empty
// results on failure (the failure is logged); writes return an *OpError whose
// message is safe to show to the user.
package habit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/habitual/internal/dates"
	"github.com/dukerupert/habitual/internal/heatmap"
	"github.com/dukerupert/habitual/internal/model"
	"github.com/dukerupert/habitual/internal/store"
)

var (
	// ErrNoIdentity means the call was made without a user id.
	ErrNoIdentity = errors.New("no authenticated user")
	ErrInvalid    = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
)

// OpError is a failed write. Error returns the user-facing message; the cause is
// available through Unwrap.
type OpError struct {
	Message string
	Err     error
}

func (e *OpError) Error() string { return e.Message }
func (e *OpError) Unwrap() error { return e.Err }

func opError(msg string, err error) error {
	return &OpError{Message: msg, Err: err}
}

type Service struct {
	habits  *store.HabitStore
	entries *store.EntryStore
	logger  *slog.Logger
}

func NewService(habits *store.HabitStore, entries *store.EntryStore, logger *slog.Logger) *Service {
	return &Service{habits: habits, entries: entries, logger: logger}
}

func (s *Service) CreateHabit(ctx context.Context, userID, name string, isQuantity bool) (*model.Habit, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, opError("Habit name is required", ErrInvalid)
	}

	h, err := s.habits.Create(userID, name, isQuantity)
	if err != nil {
		s.logger.ErrorContext(ctx, "create habit", "user_id", userID, "error", err)
		return nil, opError("Failed to create habit", err)
	}
	return h, nil
}

func (s *Service) UpdateHabit(ctx context.Context, userID, id, name string, isQuantity bool) (*model.Habit, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, opError("Habit name is required", ErrInvalid)
	}

	h, err := s.habits.Update(userID, id, name, isQuantity)
	if err != nil {
		s.logger.ErrorContext(ctx, "update habit", "user_id", userID, "habit_id", id, "error", err)
		return nil, opError("Failed to update habit", err)
	}
	if h == nil {
		return nil, opError("Failed to update habit", ErrNotFound)
	}
	return h, nil
}

func (s *Service) DeleteHabit(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrNoIdentity
	}
	if err := s.habits.Delete(userID, id); err != nil {
		s.logger.ErrorContext(ctx, "delete habit", "user_id", userID, "habit_id", id, "error", err)
		return opError("Failed to delete habit", err)
	}
	return nil
}

// GetHabit returns the user's habit or nil.
func (s *Service) GetHabit(ctx context.Context, userID, id string) (*model.Habit, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	h, err := s.habits.GetByID(userID, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "get habit", "user_id", userID, "habit_id", id, "error", err)
		return nil, nil
	}
	return h, nil
}

// ListHabits returns the user's habits oldest first.
func (s *Service) ListHabits(ctx context.Context, userID string) ([]model.Habit, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}
	habits, err := s.habits.List(userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "list habits", "user_id", userID, "error", err)
		return []model.Habit{}, nil
	}
	if habits == nil {
		habits = []model.Habit{}
	}
	return habits, nil
}

// ListEntries returns the user's entries with from <= date <= to, oldest first.
func (s *Service) ListEntries(ctx context.Context, userID, from, to string) ([]model.Entry, error) {
	return s.listEntries(ctx, userID, "", from, to)
}

// ListHabitEntries is ListEntries for a single habit.
func (s *Service) ListHabitEntries(ctx context.Context, userID, habitID, from, to string) ([]model.Entry, error) {
	return s.listEntries(ctx, userID, habitID, from, to)
}

func (s *Service) listEntries(ctx context.Context, userID, habitID, from, to string) ([]model.Entry, error) {
	if userID == "" {
		return nil, ErrNoIdentity
	}

	var entries []model.Entry
	var err error
	if habitID == "" {
		entries, err = s.entries.ListRange(userID, from, to)
	} else {
		entries, err = s.entries.ListHabitRange(userID, habitID, from, to)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "list entries", "user_id", userID, "habit_id", habitID, "from", from, "to", to, "error", err)
		return []model.Entry{}, nil
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return entries, nil
}

// EntriesForDate returns the user's entries on date keyed by habit id.
func (s *Service) EntriesForDate(ctx context.Context, userID, date string) (map[string]model.Entry, error) {
	entries, err := s.ListEntries(ctx, userID, date, date)
	if err != nil {
		return nil, err
	}
	byHabit := make(map[string]model.Entry, len(entries))
	for _, e := range entries {
		byHabit[e.HabitID] = e
	}
	return byHabit, nil
}

// Heatmap loads the user's habits and the entries of the 52-week window ending on
// now and aggregates them. An unknown selectedHabitID falls back to all habits.
func (s *Service) Heatmap(ctx context.Context, userID, selectedHabitID string, now time.Time) (*heatmap.Heatmap, error) {
	habits, err := s.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	if selectedHabitID != "" && !containsHabit(habits, selectedHabitID) {
		selectedHabitID = ""
	}

	start, end := dates.Last52Weeks(now)
	entries, err := s.ListEntries(ctx, userID, dates.FormatDB(start), dates.FormatDB(end))
	if err != nil {
		return nil, err
	}
	return heatmap.Build(habits, entries, selectedHabitID, now), nil
}

func containsHabit(habits []model.Habit, id string) bool {
	for _, h := range habits {
		if h.ID == id {
			return true
		}
	}
	return false
}
