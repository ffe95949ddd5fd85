package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:    "u-1",
		Email:     "alice@example.com",
		SessionID: "s-1",
		Method:    MethodSession,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got != ac {
		t.Errorf("AuthContext = %+v, want %+v", got, ac)
	}
	if UserID(ctx) != "u-1" {
		t.Errorf("UserID = %q, want %q", UserID(ctx), "u-1")
	}
	if Email(ctx) != "alice@example.com" {
		t.Errorf("Email = %q, want %q", Email(ctx), "alice@example.com")
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected false for missing AuthContext")
	}
	if UserID(context.Background()) != "" {
		t.Error("expected empty user id for missing context")
	}
	if Email(context.Background()) != "" {
		t.Error("expected empty email for missing context")
	}
}
