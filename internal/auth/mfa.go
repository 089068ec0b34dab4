package auth

import (
	"context"
	"fmt"

	"github.com/pquerna/otp/totp"
)

// mfaIssuer is the issuer shown by authenticator apps for provisioned accounts.
const mfaIssuer = "Mango"

// MFASetup is the output of SetupMFA: the shared secret plus the otpauth:// provisioning URI encoding it.
type MFASetup struct {
	Secret string
	URI    string
}

// SetupMFA generates a fresh TOTP secret for the user and stores it in the disabled state. Login is unaffected until
// the secret is confirmed with EnableMFA; calling SetupMFA again replaces an unconfirmed secret.
func (s *Service) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TOTPEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: u.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("generate TOTP secret: %w", err)
	}

	if _, err := s.store.UpdateUserTOTP(ctx, userID, key.Secret(), false); err != nil {
		return nil, fmt.Errorf("store TOTP secret: %w", err)
	}

	s.log.Debug().Str("user_id", userID).Msg("MFA setup started")

	return &MFASetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// EnableMFA confirms the pending TOTP secret with a valid code, turning the second factor on for subsequent logins.
func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TOTPEnabled {
		return ErrMFAAlreadyEnabled
	}
	if u.TOTPSecret == "" {
		return ErrMFANotSetup
	}
	if !totp.Validate(code, u.TOTPSecret) {
		return ErrInvalidMFACode
	}

	if _, err := s.store.UpdateUserTOTP(ctx, userID, u.TOTPSecret, true); err != nil {
		return fmt.Errorf("enable TOTP: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("MFA enabled")
	return nil
}

// DisableMFA turns the second factor off after verifying a current code, and discards the stored secret.
func (s *Service) DisableMFA(ctx context.Context, userID, code string) error {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TOTPEnabled {
		return ErrMFANotEnabled
	}
	if !totp.Validate(code, u.TOTPSecret) {
		return ErrInvalidMFACode
	}

	if _, err := s.store.UpdateUserTOTP(ctx, userID, "", false); err != nil {
		return fmt.Errorf("disable TOTP: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("MFA disabled")
	return nil
}
