// Package memstore is the in-memory store implementation. It is the
// behavioural reference: the PostgreSQL implementation must be observably
// equivalent, and the conformance suite in storetest runs against both.
//
// Every operation takes the one store-wide mutex, so composite mutations
// (server creation, cascading deletes, invite joins) are trivially atomic.
// All returned entities are copies; callers never observe later mutations.
package memstore

import (
	"context"
	"time"

	"sync"

	"github.com/aledlb8/Mango-sub000/internal/model"
)

// memberState is the stored form of a membership: the roles map holds the
// explicitly assigned role ids, never the server's default role.
type memberState struct {
	joinedAt model.Timestamp
	roles    map[string]struct{}
}

// Store holds the whole data model in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	users         map[string]*model.User
	emailIndex    map[string]string // lowercased email -> user id
	usernameIndex map[string]string // lowercased username -> user id
	sessions      map[string]*model.Session

	friends        map[string]map[string]struct{}
	friendRequests map[string]*model.FriendRequest

	servers map[string]*model.Server
	members map[string]map[string]*memberState
	roles   map[string]*model.Role

	channels   map[string]*model.Channel
	overwrites map[string]*model.Overwrite
	owSlots    map[string]string // channel|targetType|targetId -> overwrite id

	messages  map[string]*model.Message
	convIndex map[string][]string                       // conversation -> message ids, ascending
	reactions map[string]map[string]map[string]struct{} // message -> emoji -> user ids

	threads         map[string]*model.DirectThread
	dmPairs         map[string]string // sorted "a|b" -> thread id
	threadByChannel map[string]string

	markers map[string]*model.ReadMarker // conversation|user -> marker

	presences map[string]*model.Presence

	invites  map[string]*model.Invite
	bans     map[string]map[string]*model.Ban
	timeouts map[string]map[string]time.Time
	audit    map[string][]*model.AuditLogEntry // oldest first; read back reversed

	reports []*model.Report
	appeals map[string]*model.Appeal

	pushSubs  map[string]*model.PushSubscription
	pushSlots map[string]string // user|endpoint -> subscription id

	webhooks map[string]*model.Webhook // Token field holds the hash
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:           make(map[string]*model.User),
		emailIndex:      make(map[string]string),
		usernameIndex:   make(map[string]string),
		sessions:        make(map[string]*model.Session),
		friends:         make(map[string]map[string]struct{}),
		friendRequests:  make(map[string]*model.FriendRequest),
		servers:         make(map[string]*model.Server),
		members:         make(map[string]map[string]*memberState),
		roles:           make(map[string]*model.Role),
		channels:        make(map[string]*model.Channel),
		overwrites:      make(map[string]*model.Overwrite),
		owSlots:         make(map[string]string),
		messages:        make(map[string]*model.Message),
		convIndex:       make(map[string][]string),
		reactions:       make(map[string]map[string]map[string]struct{}),
		threads:         make(map[string]*model.DirectThread),
		dmPairs:         make(map[string]string),
		threadByChannel: make(map[string]string),
		markers:         make(map[string]*model.ReadMarker),
		presences:       make(map[string]*model.Presence),
		invites:         make(map[string]*model.Invite),
		bans:            make(map[string]map[string]*model.Ban),
		timeouts:        make(map[string]map[string]time.Time),
		audit:           make(map[string][]*model.AuditLogEntry),
		appeals:         make(map[string]*model.Appeal),
		pushSubs:        make(map[string]*model.PushSubscription),
		pushSlots:       make(map[string]string),
		webhooks:        make(map[string]*model.Webhook),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func markerKey(conversationID, userID string) string {
	return conversationID + "|" + userID
}
