package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// serviceIssuer identifies tokens minted by this gateway for calls to the voice service.
const serviceIssuer = "mango-gateway"

// serviceTokenTTL bounds how long a proxied request stays replayable.
const serviceTokenTTL = 2 * time.Minute

// ServiceClaims holds the JWT claims for a short-lived service token.
type ServiceClaims struct {
	jwt.RegisteredClaims
}

// NewServiceToken creates a signed JWT identifying the acting user for requests proxied to the voice service. The
// issuer is embedded in the token and must be verified during validation.
func NewServiceToken(userID, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("service token secret must not be empty")
	}

	now := time.Now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    serviceIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}

	return signed, nil
}

// ValidateServiceToken parses and validates a service token, enforcing HMAC signing method and issuer claim, and
// returns the acting user's id.
func ValidateServiceToken(tokenStr, secret string) (string, error) {
	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(serviceIssuer))
	if err != nil {
		return "", err
	}

	return claims.Subject, nil
}
