package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

// wrongCode returns a six-digit code guaranteed not to match the given one.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestMFASetupAndEnable(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg := register(t, svc, "alice@example.com", "alice", "password123")

	setup, err := svc.SetupMFA(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("SetupMFA() error = %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("SetupMFA() returned empty secret")
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Errorf("URI = %q, want otpauth://totp/ provisioning URI", setup.URI)
	}
	if !strings.Contains(setup.URI, "Mango") {
		t.Errorf("URI = %q, want issuer Mango", setup.URI)
	}

	// A pending secret does not change the login contract.
	if _, err := svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "password123"}); err != nil {
		t.Fatalf("Login(pending setup) error = %v", err)
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("totp.GenerateCode() error = %v", err)
	}

	if err := svc.EnableMFA(ctx, reg.User.ID, wrongCode(code)); !errors.Is(err, ErrInvalidMFACode) {
		t.Errorf("EnableMFA(bad code) error = %v, want %v", err, ErrInvalidMFACode)
	}
	if err := svc.EnableMFA(ctx, reg.User.ID, code); err != nil {
		t.Fatalf("EnableMFA() error = %v", err)
	}
	if err := svc.EnableMFA(ctx, reg.User.ID, code); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Errorf("EnableMFA(again) error = %v, want %v", err, ErrMFAAlreadyEnabled)
	}
}

func TestMFAEnableWithoutSetup(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg := register(t, svc, "alice@example.com", "alice", "password123")

	if err := svc.EnableMFA(ctx, reg.User.ID, "000000"); !errors.Is(err, ErrMFANotSetup) {
		t.Errorf("EnableMFA(no setup) error = %v, want %v", err, ErrMFANotSetup)
	}
}

func TestLoginWithMFA(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg := register(t, svc, "alice@example.com", "alice", "password123")

	setup, err := svc.SetupMFA(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("SetupMFA() error = %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("totp.GenerateCode() error = %v", err)
	}
	if err := svc.EnableMFA(ctx, reg.User.ID, code); err != nil {
		t.Fatalf("EnableMFA() error = %v", err)
	}

	_, err = svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "password123"})
	if !errors.Is(err, ErrMFARequired) {
		t.Errorf("Login(no otp) error = %v, want %v", err, ErrMFARequired)
	}

	_, err = svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "password123", OTP: wrongCode(code)})
	if !errors.Is(err, ErrInvalidMFACode) {
		t.Errorf("Login(bad otp) error = %v, want %v", err, ErrInvalidMFACode)
	}

	// The password is still checked before the second factor.
	_, err = svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "wrongpassword", OTP: code})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(bad password) error = %v, want %v", err, ErrInvalidCredentials)
	}

	res, err := svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "password123", OTP: code})
	if err != nil {
		t.Fatalf("Login(with otp) error = %v", err)
	}
	if res.Token == "" {
		t.Error("Login() returned empty token")
	}
}

func TestMFADisable(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg := register(t, svc, "alice@example.com", "alice", "password123")

	if err := svc.DisableMFA(ctx, reg.User.ID, "000000"); !errors.Is(err, ErrMFANotEnabled) {
		t.Errorf("DisableMFA(not enabled) error = %v, want %v", err, ErrMFANotEnabled)
	}

	setup, err := svc.SetupMFA(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("SetupMFA() error = %v", err)
	}
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("totp.GenerateCode() error = %v", err)
	}
	if err := svc.EnableMFA(ctx, reg.User.ID, code); err != nil {
		t.Fatalf("EnableMFA() error = %v", err)
	}

	if err := svc.DisableMFA(ctx, reg.User.ID, wrongCode(code)); !errors.Is(err, ErrInvalidMFACode) {
		t.Errorf("DisableMFA(bad code) error = %v, want %v", err, ErrInvalidMFACode)
	}
	if err := svc.DisableMFA(ctx, reg.User.ID, code); err != nil {
		t.Fatalf("DisableMFA() error = %v", err)
	}

	// Logins no longer require a code.
	if _, err := svc.Login(ctx, LoginRequest{Identifier: "alice", Password: "password123"}); err != nil {
		t.Fatalf("Login(after disable) error = %v", err)
	}

	// The discarded secret cannot be re-confirmed.
	if err := svc.EnableMFA(ctx, reg.User.ID, code); !errors.Is(err, ErrMFANotSetup) {
		t.Errorf("EnableMFA(after disable) error = %v, want %v", err, ErrMFANotSetup)
	}
}
