package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entity prefixes. Every identifier on the wire is the prefix, an underscore
// and 32 hex characters.
const (
	User          = "usr"
	Server        = "srv"
	Channel       = "chn"
	Message       = "msg"
	Thread        = "thr"
	Role          = "rol"
	Overwrite     = "ovr"
	Invite        = "inv"
	FriendRequest = "frq"
	Moderation    = "mod"
	Token         = "tok"
	Push          = "psh"
	Audit         = "aud"
	Report        = "rpt"
	Appeal        = "apl"
	Webhook       = "whk"
)

// New mints an opaque identifier for the given entity prefix, e.g.
// "usr_0f8fad5bd9cb469fa165708867fc9c38".
func New(prefix string) string {
	raw := uuid.New()
	return prefix + "_" + hex.EncodeToString(raw[:])
}

// Is reports whether id carries the given entity prefix.
func Is(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}

// NewToken mints a bearer session token: the "tok" prefix over 48 hex
// characters of fresh entropy.
func NewToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("ident: read entropy: %v", err))
	}
	return Token + "_" + hex.EncodeToString(b)
}

// NewSecret mints a 64-hex-character secret with no prefix, used for webhook
// tokens.
func NewSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("ident: read entropy: %v", err))
	}
	return hex.EncodeToString(b)
}

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// InviteCodeLength is the fixed length of server invite codes.
const InviteCodeLength = 8

// NewInviteCode produces a cryptographically random uppercase base32 code of
// InviteCodeLength characters.
func NewInviteCode() string {
	alphabetLen := big.NewInt(int64(len(inviteAlphabet)))
	buf := make([]byte, InviteCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			panic(fmt.Sprintf("ident: read entropy: %v", err))
		}
		buf[i] = inviteAlphabet[n.Int64()]
	}
	return string(buf)
}

// TimeLayout is the wire format for timestamps. The width is fixed, so
// lexicographic comparison of two encoded values agrees with chronological
// order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var (
	clockMu  sync.Mutex
	lastTick time.Time
)

// Now returns the current UTC time at millisecond precision. Consecutive
// calls are strictly increasing, so timestamps minted in the same millisecond
// still order deterministically.
func Now() time.Time {
	clockMu.Lock()
	defer clockMu.Unlock()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if !now.After(lastTick) {
		now = lastTick.Add(time.Millisecond)
	}
	lastTick = now
	return now
}
