package store

import "testing"

func TestPushSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ps := NewPushStore(db)

	alice, err := us.Create("alice@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, err := ps.CreateSubscription(alice.ID, "https://push.example.com/1", "p1", "a1")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	second, err := ps.CreateSubscription(alice.ID, "https://push.example.com/1", "p2", "a2")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("upsert created a new row: %q vs %q", first.ID, second.ID)
	}
	if second.P256dhKey != "p2" || second.AuthKey != "a2" {
		t.Errorf("keys not updated: %+v", second)
	}

	subs, err := ps.ListByUser(alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("len = %d, want 1", len(subs))
	}

	ids, err := ps.ListUserIDs()
	if err != nil {
		t.Fatalf("list user ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != alice.ID {
		t.Errorf("user ids = %v", ids)
	}

	if err := ps.DeleteByEndpoint("https://push.example.com/1"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	got, err := ps.GetByID(alice.ID, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSentReminderDedupe(t *testing.T) {
	db := setupTestDB(t)
	alice, err := NewUserStore(db).Create("alice@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ps := NewPushStore(db)

	sent, err := ps.WasSent(alice.ID, "2024-05-01")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("nothing recorded yet")
	}

	for i := 0; i < 2; i++ {
		if err := ps.RecordSent(alice.ID, "2024-05-01"); err != nil {
			t.Fatalf("record sent: %v", err)
		}
	}
	sent, err = ps.WasSent(alice.ID, "2024-05-01")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if !sent {
		t.Error("expected reminder recorded")
	}

	if err := ps.CleanupSent("2024-05-02"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	sent, err = ps.WasSent(alice.ID, "2024-05-01")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("expected record cleaned up")
	}
}
