package store

import "testing"

func TestLoginCodeCreate(t *testing.T) {
	ls := NewLoginCodeStore(setupTestDB(t))

	code, lc, err := ls.Create("Alice@Example.com")
	if err != nil {
		t.Fatalf("create login code: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code length = %d, want 6", len(code))
	}
	if lc.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", lc.Email, "alice@example.com")
	}
	if lc.CodeHash == code {
		t.Error("code stored in plaintext")
	}
	if !Matches(lc, code) {
		t.Error("code should match its hash")
	}
	if Matches(lc, "000000") && code != "000000" {
		t.Error("wrong code should not match")
	}
}

func TestLoginCodeInvalidatesPrevious(t *testing.T) {
	ls := NewLoginCodeStore(setupTestDB(t))

	_, first, err := ls.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	_, second, err := ls.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	latest, err := ls.GetLatestByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest == nil {
		t.Fatal("expected latest code")
	}
	if latest.ID != second.ID {
		t.Errorf("latest = %q, want %q (first was %q)", latest.ID, second.ID, first.ID)
	}
}

func TestLoginCodeAttemptsAndUse(t *testing.T) {
	ls := NewLoginCodeStore(setupTestDB(t))

	_, lc, err := ls.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		n, err := ls.IncrementAttempts(lc.ID)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != i {
			t.Errorf("attempts = %d, want %d", n, i)
		}
	}

	if err := ls.MarkUsed(lc.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	latest, err := ls.GetLatestByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest != nil {
		t.Error("used code should not be returned")
	}
}
