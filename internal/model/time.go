package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/ident"
)

// Timestamp is a time.Time that renders in the fixed-width UTC wire format,
// so encoded values compare lexicographically in chronological order.
type Timestamp struct {
	time.Time
}

// Now returns the current instant as a Timestamp.
func Now() Timestamp {
	return Timestamp{ident.Now()}
}

// At converts t to a Timestamp at wire precision.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON renders the fixed-width wire format.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(ident.FormatTime(t.Time))), nil
}

// UnmarshalJSON accepts any RFC 3339 string and normalises it to wire
// precision.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = At(parsed)
	return nil
}
