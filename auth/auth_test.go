package auth

import (
	"strings"
	"testing"
	"time"
)

func TestService_roundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.Issue(42)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 42 {
		t.Errorf("Got user id %d, want 42", claims.UserID)
	}
}

func TestService_rejectsExpired(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)

	token, err := svc.Issue(42)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(token); err == nil {
		t.Fatal("Expired token validated")
	}
}

func TestService_rejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).Issue(42)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewService("secret-b", time.Hour).Validate(token); err == nil {
		t.Fatal("Token signed with another secret validated")
	}
}

func TestService_rejectsTampered(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	token, err := svc.Issue(42)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + ".eyJ1c2VyX2lkIjo5OTl9." + parts[2]
	if _, err := svc.Validate(tampered); err == nil {
		t.Fatal("Tampered token validated")
	}
}
