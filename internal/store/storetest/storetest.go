// Package storetest is the conformance suite for store.Store. Both
// implementations must pass it unchanged: memstore runs it in-process, and
// the pgstore tests run it against a real database when one is configured.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Factory returns a fresh, empty store for one subtest. Implementations may
// register cleanup on t.
type Factory func(t *testing.T) store.Store

// Run exercises the full store contract. Subtests run sequentially so a
// database-backed factory can hand out the same schema each time.
func Run(t *testing.T, open Factory) {
	for _, tc := range []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"Users", testUsers},
		{"Sessions", testSessions},
		{"UserDeletionCascade", testUserDeletionCascade},
		{"Friends", testFriends},
		{"Servers", testServers},
		{"Members", testMembers},
		{"Roles", testRoles},
		{"Overwrites", testOverwrites},
		{"Messages", testMessages},
		{"MessagePagination", testMessagePagination},
		{"Reactions", testReactions},
		{"DirectThreads", testDirectThreads},
		{"ThreadLeaving", testThreadLeaving},
		{"ReadMarkers", testReadMarkers},
		{"Presence", testPresence},
		{"Invites", testInvites},
		{"Moderation", testModeration},
		{"Safety", testSafety},
		{"Push", testPush},
		{"Webhooks", testWebhooks},
		{"Bots", testBots},
		{"Search", testSearch},
		{"PermissionContext", testPermissionContext},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func mkUser(t *testing.T, s store.Store, name string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), store.CreateUserParams{
		Email:        name + "@example.com",
		Username:     name,
		DisplayName:  strings.ToUpper(name[:1]) + name[1:],
		PasswordHash: "argon2-placeholder",
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) error = %v", name, err)
	}
	return u
}

func mkServer(t *testing.T, s store.Store, ownerID, name string) *model.Server {
	t.Helper()
	srv, err := s.CreateServer(context.Background(), ownerID, name)
	if err != nil {
		t.Fatalf("CreateServer(%s) error = %v", name, err)
	}
	return srv
}

func mkChannel(t *testing.T, s store.Store, serverID, name string) *model.Channel {
	t.Helper()
	ch, err := s.CreateChannel(context.Background(), serverID, name, model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel(%s) error = %v", name, err)
	}
	return ch
}

func mkMember(t *testing.T, s store.Store, serverID, userID string) {
	t.Helper()
	if _, err := s.AddMember(context.Background(), serverID, userID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
}

func mkMessage(t *testing.T, s store.Store, channelID, authorID, body string) *model.Message {
	t.Helper()
	m, err := s.CreateMessage(context.Background(), store.CreateMessageParams{
		ChannelID: channelID,
		AuthorID:  authorID,
		Body:      body,
	})
	if err != nil {
		t.Fatalf("CreateMessage(%q) error = %v", body, err)
	}
	return m
}

func mkThread(t *testing.T, s store.Store, ownerID string, participants ...string) *model.DirectThread {
	t.Helper()
	th, _, err := s.CreateDirectThread(context.Background(), store.CreateThreadParams{
		OwnerID:        ownerID,
		ParticipantIDs: participants,
	})
	if err != nil {
		t.Fatalf("CreateDirectThread() error = %v", err)
	}
	return th
}

func wantErr(t *testing.T, err, want error, op string) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("%s error = %v, want %v", op, err, want)
	}
}
