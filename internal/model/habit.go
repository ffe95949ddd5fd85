package model

import "time"

type Habit struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	IsQuantity bool      `json:"is_quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Entry is one day's recorded value for a habit. Date is YYYY-MM-DD and Value is
// always positive; a zero value is represented by the row being absent.
type Entry struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
