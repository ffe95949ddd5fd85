package habit

import (
	"context"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in       int
		want     int
		wantKeep bool
	}{
		{-3, 0, false},
		{0, 0, false},
		{1, 1, true},
		{42, 42, true},
	}
	for _, tt := range tests {
		got, keep := Normalize(tt.in)
		if got != tt.want || keep != tt.wantKeep {
			t.Errorf("Normalize(%d) = (%d, %v), want (%d, %v)", tt.in, got, keep, tt.want, tt.wantKeep)
		}
	}
}

func TestToggleCreateThenDelete(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	h, err := svc.CreateHabit(ctx, userID, "Exercise", false)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	e, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-01-02", 1)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if e == nil || e.Value != 1 {
		t.Fatalf("entry = %+v, want value 1", e)
	}

	entries, _ := svc.ListHabitEntries(ctx, userID, h.ID, "2024-01-02", "2024-01-02")
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	e, err = svc.ToggleEntry(ctx, userID, h.ID, "2024-01-02", 0)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if e != nil {
		t.Errorf("entry after toggle off = %+v, want nil", e)
	}

	entries, _ = svc.ListHabitEntries(ctx, userID, h.ID, "2024-01-02", "2024-01-02")
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestToggleUpdatesExisting(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	h, err := svc.CreateHabit(ctx, userID, "Pushups", true)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	first, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-01-02", 10)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	second, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-01-02", 25)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("update should keep the row: %q vs %q", second.ID, first.ID)
	}
	if second.Value != 25 {
		t.Errorf("value = %d, want 25", second.Value)
	}

	entries, _ := svc.ListHabitEntries(ctx, userID, h.ID, "2024-01-01", "2024-01-31")
	if len(entries) != 1 || entries[0].Value != 25 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestToggleZeroWithoutEntryIsNoop(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	h, err := svc.CreateHabit(ctx, userID, "Exercise", false)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	for _, v := range []int{0, -1} {
		e, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-01-02", v)
		if err != nil {
			t.Fatalf("toggle %d: %v", v, err)
		}
		if e != nil {
			t.Errorf("toggle %d returned %+v, want nil", v, e)
		}
	}
	entries, _ := svc.ListEntries(ctx, userID, "2024-01-01", "2024-12-31")
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestToggleRoundTripRestoresSet(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	h, err := svc.CreateHabit(ctx, userID, "Pushups", true)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if _, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-05-05", 12); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	before, _ := svc.ListEntries(ctx, userID, "2024-01-01", "2024-12-31")

	if _, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-05-05", 0); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if _, err := svc.ToggleEntry(ctx, userID, h.ID, "2024-05-05", 12); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	after, _ := svc.ListEntries(ctx, userID, "2024-01-01", "2024-12-31")

	if len(before) != len(after) {
		t.Fatalf("len before = %d, after = %d", len(before), len(after))
	}
	for i := range before {
		b, a := before[i], after[i]
		if b.HabitID != a.HabitID || b.Date != a.Date || b.Value != a.Value {
			t.Errorf("entry %d: before %+v, after %+v", i, b, a)
		}
	}
}

func TestToggleValidation(t *testing.T) {
	svc, users, aliceID := setupService(t)
	ctx := context.Background()

	h, err := svc.CreateHabit(ctx, aliceID, "Exercise", false)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	bob, err := users.Create("bob@example.com")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	tests := []struct {
		name    string
		userID  string
		habitID string
		date    string
		wantMsg string
		wantErr error
	}{
		{"missing habit", aliceID, "", "2024-01-01", "Habit ID and date are required", ErrInvalid},
		{"missing date", aliceID, h.ID, "", "Habit ID and date are required", ErrInvalid},
		{"bad date", aliceID, h.ID, "01/02/2024", "Invalid date", ErrInvalid},
		{"other user", bob.ID, h.ID, "2024-01-01", "Habit not found", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ToggleEntry(ctx, tt.userID, tt.habitID, tt.date, 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			var opErr *OpError
			if !errors.As(err, &opErr) {
				t.Errorf("expected *OpError, got %T", err)
			}
		})
	}
}
