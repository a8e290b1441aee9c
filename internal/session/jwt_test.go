package session

import (
	"testing"
	"time"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	userName := "alice"

	tok, err := GenerateToken(userName, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	gotUserName, err := GetUserNameFromToken(tok, secret)
	if err != nil {
		t.Fatalf("GetUserNameFromToken error: %v", err)
	}
	if gotUserName != userName {
		t.Fatalf("username mismatch: got %q want %q", gotUserName, userName)
	}
}

func TestGetUserNameFromToken_Expired(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("alice", []byte("secret"), -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err = GetUserNameFromToken(tok, []byte("secret")); err == nil {
		t.Fatalf("expected error for expired token, got nil")
	}
}

func TestGetUserNameFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("bob", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err = GetUserNameFromToken(tok, []byte("wrong-secret")); err == nil {
		t.Fatalf("expected error for invalid signature, got nil")
	}
}

func TestGetUserNameFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	if _, err := GetUserNameFromToken("not.a.jwt", []byte("k")); err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}
