package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/habitual/internal/database"
	"github.com/dukerupert/habitual/internal/model"
	"github.com/google/uuid"
)

type HabitStore struct {
	db *database.DB
}

func NewHabitStore(db *database.DB) *HabitStore {
	return &HabitStore{db: db}
}

func scanHabit(scanner interface{ Scan(...any) error }) (*model.Habit, error) {
	var h model.Habit
	err := scanner.Scan(&h.ID, &h.UserID, &h.Name, &h.IsQuantity, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const habitCols = `id, user_id, name, is_quantity, created_at, updated_at`

func (s *HabitStore) Create(userID, name string, isQuantity bool) (*model.Habit, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO habits (id, user_id, name, is_quantity, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, name, isQuantity, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert habit: %w", err)
	}
	return s.GetByID(userID, id)
}

// GetByID returns the habit only if it belongs to userID.
func (s *HabitStore) GetByID(userID, id string) (*model.Habit, error) {
	row := s.db.QueryRow(`SELECT `+habitCols+` FROM habits WHERE id = ? AND user_id = ?`, id, userID)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

// List returns the user's habits, oldest first.
func (s *HabitStore) List(userID string) ([]model.Habit, error) {
	rows, err := s.db.Query(`SELECT `+habitCols+` FROM habits WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// Update renames the habit and sets its kind. It returns nil when no habit with
// that id belongs to userID.
func (s *HabitStore) Update(userID, id, name string, isQuantity bool) (*model.Habit, error) {
	result, err := s.db.Exec(
		`UPDATE habits SET name = ?, is_quantity = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		name, isQuantity, time.Now().UTC(), id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(userID, id)
}

// Delete removes the habit and its entries.
func (s *HabitStore) Delete(userID, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries WHERE habit_id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("delete habit entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM habits WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return tx.Commit()
}
