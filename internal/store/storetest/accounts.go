package storetest

import (
	"context"
	"strings"
	"testing"

	"github.com/aledlb8/Mango-sub000/internal/ident"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")

	if !ident.Is(alice.ID, ident.User) {
		t.Errorf("user id = %q, want usr_ prefix", alice.ID)
	}
	if alice.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	got, err := s.UserByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("UserByID() error = %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q, want alice", got.Username)
	}

	// Email and username lookups are case-insensitive.
	if _, err := s.UserByEmail(ctx, "ALICE@example.com"); err != nil {
		t.Errorf("UserByEmail(upper) error = %v", err)
	}
	if _, err := s.UserByUsername(ctx, "Alice"); err != nil {
		t.Errorf("UserByUsername(mixed) error = %v", err)
	}

	_, err = s.CreateUser(ctx, store.CreateUserParams{
		Email: "Alice@Example.com", Username: "other", PasswordHash: "x",
	})
	wantErr(t, err, store.ErrEmailTaken, "CreateUser(dup email)")

	_, err = s.CreateUser(ctx, store.CreateUserParams{
		Email: "new@example.com", Username: "ALICE", PasswordHash: "x",
	})
	wantErr(t, err, store.ErrUsernameTaken, "CreateUser(dup username)")

	_, err = s.UserByID(ctx, "usr_"+strings.Repeat("0", 32))
	wantErr(t, err, store.ErrNotFound, "UserByID(unknown)")

	u, err := s.UpdateUserTOTP(ctx, alice.ID, "JBSWY3DP", true)
	if err != nil {
		t.Fatalf("UpdateUserTOTP() error = %v", err)
	}
	if !u.TOTPEnabled || u.TOTPSecret != "JBSWY3DP" {
		t.Errorf("TOTP state = (%v, %q), want (true, JBSWY3DP)", u.TOTPEnabled, u.TOTPSecret)
	}
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")

	sess, err := s.CreateSession(ctx, alice.ID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if !strings.HasPrefix(sess.Token, "tok_") {
		t.Errorf("token = %q, want tok_ prefix", sess.Token)
	}

	u, err := s.SessionUser(ctx, sess.Token)
	if err != nil {
		t.Fatalf("SessionUser() error = %v", err)
	}
	if u.ID != alice.ID {
		t.Errorf("SessionUser() id = %q, want %q", u.ID, alice.ID)
	}

	if err := s.DeleteSession(ctx, sess.Token); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	_, err = s.SessionUser(ctx, sess.Token)
	wantErr(t, err, store.ErrNotFound, "SessionUser(deleted)")

	// Deleting an unknown token is a no-op.
	if err := s.DeleteSession(ctx, "tok_unknown"); err != nil {
		t.Errorf("DeleteSession(unknown) error = %v", err)
	}

	_, err = s.CreateSession(ctx, "usr_missing")
	wantErr(t, err, store.ErrNotFound, "CreateSession(unknown user)")
}

func testUserDeletionCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")

	sess, _ := s.CreateSession(ctx, alice.ID)
	srv := mkServer(t, s, alice.ID, "alice's place")
	ch := mkChannel(t, s, srv.ID, "general")
	mkMember(t, s, srv.ID, bob.ID)
	mkMessage(t, s, ch.ID, bob.ID, "hello")

	other := mkServer(t, s, bob.ID, "bob's place")
	otherCh := mkChannel(t, s, other.ID, "general")
	mkMember(t, s, other.ID, alice.ID)
	kept := mkMessage(t, s, otherCh.ID, alice.ID, "surviving message")

	req, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateFriendRequest() error = %v", err)
	}
	if _, err := s.RespondFriendRequest(ctx, req.ID, bob.ID, true); err != nil {
		t.Fatalf("RespondFriendRequest() error = %v", err)
	}

	if _, err := s.CreatePushSubscription(ctx, store.CreatePushParams{
		UserID: alice.ID, Endpoint: "https://push.example/1", P256dh: "p", Auth: "a",
	}); err != nil {
		t.Fatalf("CreatePushSubscription() error = %v", err)
	}

	if err := s.DeleteUser(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	_, err = s.SessionUser(ctx, sess.Token)
	wantErr(t, err, store.ErrNotFound, "SessionUser(after delete)")

	// The owned server is gone with everything in it.
	_, err = s.ServerByID(ctx, srv.ID)
	wantErr(t, err, store.ErrNotFound, "ServerByID(owned)")
	_, err = s.ChannelByID(ctx, ch.ID)
	wantErr(t, err, store.ErrNotFound, "ChannelByID(owned)")

	// The foreign membership is gone, the authored message is not.
	_, err = s.Member(ctx, other.ID, alice.ID)
	wantErr(t, err, store.ErrNotFound, "Member(after delete)")
	survivor, err := s.MessageByID(ctx, kept.ID)
	if err != nil {
		t.Fatalf("MessageByID(survivor) error = %v", err)
	}
	if survivor.AuthorID != alice.ID {
		t.Errorf("survivor authorId = %q, want dangling %q", survivor.AuthorID, alice.ID)
	}

	friends, err := s.Friends(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Friends() error = %v", err)
	}
	if len(friends) != 0 {
		t.Errorf("bob still has %d friends after alice's deletion", len(friends))
	}

	subs, err := s.PushSubscriptions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("PushSubscriptions() error = %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("push subscriptions survived deletion: %d", len(subs))
	}
}

func testFriends(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	cara := mkUser(t, s, "cara")

	req, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateFriendRequest() error = %v", err)
	}
	if req.Status != model.FriendRequestPending {
		t.Errorf("status = %q, want pending", req.Status)
	}

	_, err = s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	wantErr(t, err, store.ErrRequestPending, "CreateFriendRequest(dup)")
	_, err = s.CreateFriendRequest(ctx, bob.ID, alice.ID)
	wantErr(t, err, store.ErrRequestPending, "CreateFriendRequest(reverse)")
	_, err = s.CreateFriendRequest(ctx, alice.ID, "usr_missing")
	wantErr(t, err, store.ErrNotFound, "CreateFriendRequest(unknown)")

	incoming, outgoing, err := s.FriendRequests(ctx, bob.ID)
	if err != nil {
		t.Fatalf("FriendRequests() error = %v", err)
	}
	if len(incoming) != 1 || len(outgoing) != 0 {
		t.Fatalf("bob requests = (%d in, %d out), want (1, 0)", len(incoming), len(outgoing))
	}

	// Only the recipient can respond.
	_, err = s.RespondFriendRequest(ctx, req.ID, alice.ID, true)
	wantErr(t, err, store.ErrNotFound, "RespondFriendRequest(sender)")

	accepted, err := s.RespondFriendRequest(ctx, req.ID, bob.ID, true)
	if err != nil {
		t.Fatalf("RespondFriendRequest() error = %v", err)
	}
	if accepted.Status != model.FriendRequestAccepted {
		t.Errorf("status = %q, want accepted", accepted.Status)
	}

	// The friendship is symmetric.
	for _, id := range []string{alice.ID, bob.ID} {
		friends, err := s.Friends(ctx, id)
		if err != nil {
			t.Fatalf("Friends(%s) error = %v", id, err)
		}
		if len(friends) != 1 {
			t.Fatalf("Friends(%s) = %d entries, want 1", id, len(friends))
		}
	}

	_, err = s.CreateFriendRequest(ctx, bob.ID, alice.ID)
	wantErr(t, err, store.ErrAlreadyFriends, "CreateFriendRequest(friends)")

	// A settled request cannot be responded to again.
	_, err = s.RespondFriendRequest(ctx, req.ID, bob.ID, false)
	wantErr(t, err, store.ErrNotFound, "RespondFriendRequest(settled)")

	// Rejection leaves no friendship behind.
	req2, err := s.CreateFriendRequest(ctx, cara.ID, alice.ID)
	if err != nil {
		t.Fatalf("CreateFriendRequest() error = %v", err)
	}
	rejected, err := s.RespondFriendRequest(ctx, req2.ID, alice.ID, false)
	if err != nil {
		t.Fatalf("RespondFriendRequest(reject) error = %v", err)
	}
	if rejected.Status != model.FriendRequestRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}
	friends, _ := s.Friends(ctx, cara.ID)
	if len(friends) != 0 {
		t.Errorf("cara has %d friends after rejection, want 0", len(friends))
	}

	if err := s.RemoveFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("RemoveFriend() error = %v", err)
	}
	friends, _ = s.Friends(ctx, bob.ID)
	if len(friends) != 0 {
		t.Errorf("bob has %d friends after removal, want 0", len(friends))
	}
	// Removing an absent friendship is a no-op.
	if err := s.RemoveFriend(ctx, alice.ID, bob.ID); err != nil {
		t.Errorf("RemoveFriend(absent) error = %v", err)
	}
}
