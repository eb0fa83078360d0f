package security_test

import (
	"strings"
	"testing"
	"time"

	"github.com/devroom-sh/devroom/internal/security"
	"github.com/google/uuid"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	userID := uuid.New()
	name := "ada"

	token, err := manager.GenerateAccessToken(userID, name)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	if token == "" {
		t.Error("access token is empty")
	}

	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("user ID mismatch: got %v, want %v", claims.UserID, userID)
	}

	if claims.Name != name {
		t.Errorf("name mismatch: got %q, want %q", claims.Name, name)
	}
}

func TestJWTManager_ValidateTamperedToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	token, err := manager.GenerateAccessToken(uuid.New(), "ada")
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	// Flip a character in the signature segment
	tampered := token[:len(token)-2] + "xx"
	if _, err := manager.ValidateAccessToken(tampered); err == nil {
		t.Error("expected validation of tampered token to fail")
	}

	// Token signed with a different secret
	other := security.NewJWTManager("another-secret-key-entirely!!!!!", 15*time.Minute)
	foreign, err := other.GenerateAccessToken(uuid.New(), "eve")
	if err != nil {
		t.Fatalf("failed to generate foreign token: %v", err)
	}
	if _, err := manager.ValidateAccessToken(foreign); err == nil {
		t.Error("expected validation of foreign token to fail")
	}
}

func TestJWTManager_ValidateExpiredToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", -time.Minute)

	token, err := manager.GenerateAccessToken(uuid.New(), "ada")
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	_, err = manager.ValidateAccessToken(token)
	if err == nil {
		t.Fatal("expected validation of expired token to fail")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("expected expiry error, got: %v", err)
	}
}
