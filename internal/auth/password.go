package auth

import (
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/aledlb8/Mango-sub000/internal/config"
)

// hasher binds argon2id to the cost parameters from the configuration, so
// every hash minted by this process carries the same settings. The sink is
// a real hash of a throwaway password: logins against unknown accounts
// verify the submitted password against it, which keeps "no such user" as
// slow as "wrong password" and defeats account enumeration by timing.
type hasher struct {
	params *argon2id.Params
	sink   string
}

func newHasher(cfg *config.Config) hasher {
	h := hasher{params: &argon2id.Params{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		SaltLength:  cfg.Argon2SaltLength,
		KeyLength:   cfg.Argon2KeyLength,
	}}
	sink, err := h.Hash("mango-timing-sink")
	if err != nil {
		// Cannot happen with validated config; a static hash keeps the
		// sink usable regardless.
		sink = "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0$placeholder"
	}
	h.sink = sink
	return h
}

// Hash derives an argon2id hash of password under the configured costs.
func (h hasher) Hash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Compare reports whether password matches the stored hash.
func (h hasher) Compare(password, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return match, nil
}

// burn spends one verification's worth of work without revealing anything.
func (h hasher) burn(password string) {
	_, _ = argon2id.ComparePasswordAndHash(password, h.sink)
}
