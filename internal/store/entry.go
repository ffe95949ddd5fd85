package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/habitual/internal/database"
	"github.com/dukerupert/habitual/internal/model"
	"github.com/google/uuid"
)

type EntryStore struct {
	db *database.DB
}

func NewEntryStore(db *database.DB) *EntryStore {
	return &EntryStore{db: db}
}

func scanEntry(scanner interface{ Scan(...any) error }) (*model.Entry, error) {
	var e model.Entry
	err := scanner.Scan(&e.ID, &e.HabitID, &e.UserID, &e.Date, &e.Value, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const entryCols = `id, habit_id, user_id, date, value, created_at`

// Get returns the entry for (habit, date) owned by userID, or nil.
func (s *EntryStore) Get(userID, habitID, date string) (*model.Entry, error) {
	row := s.db.QueryRow(
		`SELECT `+entryCols+` FROM entries WHERE habit_id = ? AND date = ? AND user_id = ?`,
		habitID, date, userID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *EntryStore) Create(userID, habitID, date string, value int) (*model.Entry, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO entries (id, habit_id, user_id, date, value, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, habitID, userID, date, value, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return s.Get(userID, habitID, date)
}

func (s *EntryStore) UpdateValue(userID, id string, value int) error {
	_, err := s.db.Exec(`UPDATE entries SET value = ? WHERE id = ? AND user_id = ?`, value, id, userID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

func (s *EntryStore) Delete(userID, id string) error {
	_, err := s.db.Exec(`DELETE FROM entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// ListRange returns the user's entries with from <= date <= to, ordered by date.
func (s *EntryStore) ListRange(userID, from, to string) ([]model.Entry, error) {
	return s.list(
		`SELECT `+entryCols+` FROM entries WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date ASC, created_at ASC`,
		userID, from, to,
	)
}

// ListHabitRange is ListRange restricted to one habit.
func (s *EntryStore) ListHabitRange(userID, habitID, from, to string) ([]model.Entry, error) {
	return s.list(
		`SELECT `+entryCols+` FROM entries WHERE user_id = ? AND habit_id = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		userID, habitID, from, to,
	)
}

// HasAnyOn reports whether the user logged anything on date.
func (s *EntryStore) HasAnyOn(userID, date string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE user_id = ? AND date = ?`, userID, date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count entries: %w", err)
	}
	return count > 0, nil
}

func (s *EntryStore) list(query string, args ...any) ([]model.Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
