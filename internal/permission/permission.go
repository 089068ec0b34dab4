package permission

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Capability names one grantable permission.
type Capability string

const (
	ManageServer   Capability = "manage_server"
	ManageChannels Capability = "manage_channels"
	ReadMessages   Capability = "read_messages"
	SendMessages   Capability = "send_messages"
)

// order fixes how capability sets render on the wire.
var order = []Capability{ManageServer, ManageChannels, ReadMessages, SendMessages}

var bits = map[Capability]Set{
	ManageServer:   1 << 0,
	ManageChannels: 1 << 1,
	ReadMessages:   1 << 2,
	SendMessages:   1 << 3,
}

// Valid reports whether c names a known capability.
func Valid(c Capability) bool {
	_, ok := bits[c]
	return ok
}

// Set is a capability set. The zero value is empty.
type Set uint8

// AllSet contains every capability.
const AllSet = Set(1<<0 | 1<<1 | 1<<2 | 1<<3)

// Of builds a set from the given capabilities. Unknown names are ignored.
func Of(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		s |= bits[c]
	}
	return s
}

// Parse builds a set from wire capability names, rejecting unknown ones.
func Parse(names []string) (Set, error) {
	var s Set
	for _, name := range names {
		c := Capability(name)
		if !Valid(c) {
			return 0, fmt.Errorf("unknown capability %q", name)
		}
		s |= bits[c]
	}
	return s, nil
}

// Has reports whether the set contains c.
func (s Set) Has(c Capability) bool {
	return s&bits[c] != 0
}

// Add returns the union of s and other.
func (s Set) Add(other Set) Set {
	return s | other
}

// Remove returns s without the capabilities in other.
func (s Set) Remove(other Set) Set {
	return s &^ other
}

// Capabilities lists the members of the set in wire order.
func (s Set) Capabilities() []Capability {
	out := make([]Capability, 0, len(order))
	for _, c := range order {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s Set) String() string {
	parts := make([]string, 0, len(order))
	for _, c := range s.Capabilities() {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ",")
}

// MarshalJSON renders the set as a sorted array of capability names.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Capabilities())
}

// UnmarshalJSON accepts an array of capability names, rejecting unknown ones.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := Parse(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
