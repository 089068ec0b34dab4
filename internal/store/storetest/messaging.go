package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")
	mkMember(t, s, srv.ID, bob.ID)

	m := mkMessage(t, s, ch.ID, alice.ID, "hello world")
	if m.ConversationID != ch.ID || m.ChannelID != ch.ID {
		t.Errorf("conversation/channel = %q/%q, want both %q", m.ConversationID, m.ChannelID, ch.ID)
	}
	if m.Attachments == nil || len(m.Attachments) != 0 {
		t.Errorf("Attachments = %v, want empty non-nil", m.Attachments)
	}
	if m.Reactions == nil || len(m.Reactions) != 0 {
		t.Errorf("Reactions = %v, want empty non-nil", m.Reactions)
	}
	if !m.UpdatedAt.IsZero() {
		t.Error("fresh message has UpdatedAt set")
	}

	_, err := s.CreateMessage(ctx, store.CreateMessageParams{ChannelID: "chn_missing", AuthorID: alice.ID, Body: "x"})
	wantErr(t, err, store.ErrNotFound, "CreateMessage(unknown channel)")

	// Replies must reference a live message in the same conversation.
	reply, err := s.CreateMessage(ctx, store.CreateMessageParams{
		ChannelID: ch.ID, AuthorID: bob.ID, Body: "hi back", ReplyToID: m.ID,
	})
	if err != nil {
		t.Fatalf("CreateMessage(reply) error = %v", err)
	}
	if reply.ReplyToID != m.ID {
		t.Errorf("ReplyToID = %q, want %q", reply.ReplyToID, m.ID)
	}
	other := mkChannel(t, s, srv.ID, "random")
	_, err = s.CreateMessage(ctx, store.CreateMessageParams{
		ChannelID: other.ID, AuthorID: bob.ID, Body: "cross", ReplyToID: m.ID,
	})
	wantErr(t, err, store.ErrReplyNotFound, "CreateMessage(cross-conversation reply)")

	// Edits are author-only and stamp updatedAt.
	_, err = s.UpdateMessage(ctx, m.ID, bob.ID, "hijacked")
	wantErr(t, err, store.ErrNotAuthor, "UpdateMessage(non-author)")
	edited, err := s.UpdateMessage(ctx, m.ID, alice.ID, "hello again")
	if err != nil {
		t.Fatalf("UpdateMessage() error = %v", err)
	}
	if edited.Body != "hello again" || edited.UpdatedAt.IsZero() {
		t.Errorf("edited = %q updatedAt zero=%v", edited.Body, edited.UpdatedAt.IsZero())
	}

	_, err = s.DeleteMessage(ctx, m.ID, bob.ID)
	wantErr(t, err, store.ErrNotAuthor, "DeleteMessage(non-author)")
	snapshot, err := s.DeleteMessage(ctx, m.ID, alice.ID)
	if err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if snapshot.ID != m.ID {
		t.Errorf("snapshot id = %q, want %q", snapshot.ID, m.ID)
	}
	_, err = s.MessageByID(ctx, m.ID)
	wantErr(t, err, store.ErrNotFound, "MessageByID(deleted)")
}

func testMessagePagination(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")

	var ids []string
	for _, body := range []string{"one", "two", "three", "four", "five"} {
		ids = append(ids, mkMessage(t, s, ch.ID, alice.ID, body).ID)
	}

	assertWindow := func(name string, params store.ListMessagesParams, want []string) {
		t.Helper()
		got, err := s.ListMessages(ctx, params)
		if err != nil {
			t.Fatalf("%s: ListMessages() error = %v", name, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: %d messages, want %d", name, len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Errorf("%s: got[%d] = %q, want %q", name, i, got[i].ID, want[i])
			}
		}
	}

	assertWindow("all", store.ListMessagesParams{ConversationID: ch.ID}, ids)
	assertWindow("newest page", store.ListMessagesParams{ConversationID: ch.ID, Limit: 2}, ids[3:])
	assertWindow("before", store.ListMessagesParams{ConversationID: ch.ID, Before: ids[3], Limit: 2}, ids[1:3])
	assertWindow("after", store.ListMessagesParams{ConversationID: ch.ID, After: ids[1], Limit: 2}, ids[2:4])
	assertWindow("after newest", store.ListMessagesParams{ConversationID: ch.ID, After: ids[4]}, nil)
	assertWindow("between", store.ListMessagesParams{ConversationID: ch.ID, After: ids[0], Before: ids[4]}, ids[1:4])

	_, err := s.ListMessages(ctx, store.ListMessagesParams{ConversationID: ch.ID, After: "msg_missing"})
	wantErr(t, err, store.ErrNotFound, "ListMessages(unknown cursor)")
	_, err = s.ListMessages(ctx, store.ListMessagesParams{ConversationID: "chn_missing"})
	wantErr(t, err, store.ErrNotFound, "ListMessages(unknown conversation)")
}

func testReactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")
	mkMember(t, s, srv.ID, bob.ID)
	m := mkMessage(t, s, ch.ID, alice.ID, "react to this")

	got, changed, err := s.AddReaction(ctx, m.ID, alice.ID, "🔥")
	if err != nil {
		t.Fatalf("AddReaction() error = %v", err)
	}
	if !changed {
		t.Error("first AddReaction() changed = false")
	}
	if len(got.Reactions) != 1 || got.Reactions[0].Count != 1 {
		t.Fatalf("Reactions = %+v, want one 🔥 with count 1", got.Reactions)
	}

	// Duplicate insert is a no-op.
	_, changed, err = s.AddReaction(ctx, m.ID, alice.ID, "🔥")
	if err != nil {
		t.Fatalf("AddReaction(dup) error = %v", err)
	}
	if changed {
		t.Error("duplicate AddReaction() changed = true")
	}

	if _, _, err := s.AddReaction(ctx, m.ID, bob.ID, "🔥"); err != nil {
		t.Fatalf("AddReaction(bob) error = %v", err)
	}
	if _, _, err := s.AddReaction(ctx, m.ID, bob.ID, "🎉"); err != nil {
		t.Fatalf("AddReaction(second emoji) error = %v", err)
	}

	got, err = s.MessageByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("MessageByID() error = %v", err)
	}
	// Summary orders by emoji; 🎉 (1F389) sorts before 🔥 (1F525).
	if len(got.Reactions) != 2 || got.Reactions[0].Emoji != "🎉" || got.Reactions[1].Count != 2 {
		t.Fatalf("Reactions = %+v", got.Reactions)
	}

	got, changed, err = s.RemoveReaction(ctx, m.ID, bob.ID, "🎉")
	if err != nil || !changed {
		t.Fatalf("RemoveReaction() = changed %v, err %v", changed, err)
	}
	if len(got.Reactions) != 1 {
		t.Errorf("Reactions after removal = %+v, want 🔥 only", got.Reactions)
	}

	_, changed, err = s.RemoveReaction(ctx, m.ID, bob.ID, "🎉")
	if err != nil {
		t.Fatalf("RemoveReaction(absent) error = %v", err)
	}
	if changed {
		t.Error("absent RemoveReaction() changed = true")
	}

	_, _, err = s.AddReaction(ctx, "msg_missing", alice.ID, "🔥")
	wantErr(t, err, store.ErrNotFound, "AddReaction(unknown message)")
}

func testDirectThreads(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	cara := mkUser(t, s, "cara")

	th, created, err := s.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID: alice.ID, ParticipantIDs: []string{bob.ID},
	})
	if err != nil {
		t.Fatalf("CreateDirectThread() error = %v", err)
	}
	if !created || th.Kind != model.ThreadDM || th.ChannelID == "" {
		t.Fatalf("thread = %+v created = %v, want a fresh dm with a backing channel", th, created)
	}
	if len(th.ParticipantIDs) != 2 {
		t.Errorf("participants = %v, want 2", th.ParticipantIDs)
	}

	// The same unordered pair resolves to the same thread, from either side.
	again, created, err := s.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID: bob.ID, ParticipantIDs: []string{alice.ID},
	})
	if err != nil {
		t.Fatalf("CreateDirectThread(dedup) error = %v", err)
	}
	if created || again.ID != th.ID {
		t.Errorf("dedup = (%q, %v), want (%q, false)", again.ID, created, th.ID)
	}

	// Group threads never deduplicate.
	g1 := mkThread(t, s, alice.ID, bob.ID, cara.ID)
	g2 := mkThread(t, s, alice.ID, bob.ID, cara.ID)
	if g1.Kind != model.ThreadGroup || g1.ID == g2.ID {
		t.Errorf("group threads = %q/%q kind %q, want distinct groups", g1.ID, g2.ID, g1.Kind)
	}

	_, _, err = s.CreateDirectThread(ctx, store.CreateThreadParams{OwnerID: alice.ID})
	wantErr(t, err, store.ErrThreadParticipants, "CreateDirectThread(solo)")
	_, _, err = s.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID: alice.ID, ParticipantIDs: []string{"usr_missing"},
	})
	wantErr(t, err, store.ErrThreadParticipants, "CreateDirectThread(unknown participant)")

	// Backing servers stay invisible.
	for _, u := range []string{alice.ID, bob.ID} {
		servers, err := s.ServersForUser(ctx, u)
		if err != nil {
			t.Fatalf("ServersForUser() error = %v", err)
		}
		if len(servers) != 0 {
			t.Errorf("ServersForUser(%s) = %d servers, want 0 (backing servers hidden)", u, len(servers))
		}
	}

	// A thread message lands in the thread conversation and bumps updatedAt.
	msg, err := s.CreateMessage(ctx, store.CreateMessageParams{
		DirectThreadID: th.ID, AuthorID: bob.ID, Body: "psst",
	})
	if err != nil {
		t.Fatalf("CreateMessage(thread) error = %v", err)
	}
	if msg.ConversationID != th.ID || msg.DirectThreadID != th.ID {
		t.Errorf("conversation = %q directThread = %q, want both %q", msg.ConversationID, msg.DirectThreadID, th.ID)
	}
	if msg.ChannelID != th.ChannelID {
		t.Errorf("ChannelID = %q, want backing channel %q", msg.ChannelID, th.ChannelID)
	}

	threads, err := s.DirectThreadsForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("DirectThreadsForUser() error = %v", err)
	}
	if len(threads) != 3 {
		t.Fatalf("DirectThreadsForUser() = %d threads, want 3", len(threads))
	}
	// Ascending by updatedAt puts the just-bumped dm last.
	if threads[2].ID != th.ID {
		t.Errorf("threads[2] = %q, want the freshly bumped %q", threads[2].ID, th.ID)
	}
}

func testThreadLeaving(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	cara := mkUser(t, s, "cara")

	group := mkThread(t, s, alice.ID, bob.ID, cara.ID)

	_, err := s.LeaveDirectThread(ctx, group.ID, "usr_missing")
	wantErr(t, err, store.ErrNotFound, "LeaveDirectThread(non-participant)")

	// The owner leaving hands the thread to a remaining participant.
	after, err := s.LeaveDirectThread(ctx, group.ID, alice.ID)
	if err != nil {
		t.Fatalf("LeaveDirectThread(owner) error = %v", err)
	}
	if after == nil || len(after.ParticipantIDs) != 2 {
		t.Fatalf("after = %+v, want 2 remaining participants", after)
	}
	if after.OwnerID == alice.ID {
		t.Error("ownership did not transfer")
	}
	for _, id := range after.ParticipantIDs {
		if id == alice.ID {
			t.Error("alice still listed after leaving")
		}
	}

	// The last leaver destroys the thread and its backing storage.
	msg, err := s.CreateMessage(ctx, store.CreateMessageParams{DirectThreadID: group.ID, AuthorID: bob.ID, Body: "left behind"})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if _, err := s.LeaveDirectThread(ctx, group.ID, bob.ID); err != nil {
		t.Fatalf("LeaveDirectThread(bob) error = %v", err)
	}
	gone, err := s.LeaveDirectThread(ctx, group.ID, cara.ID)
	if err != nil {
		t.Fatalf("LeaveDirectThread(last) error = %v", err)
	}
	if gone != nil {
		t.Errorf("last leave returned %+v, want nil", gone)
	}
	_, err = s.DirectThreadByID(ctx, group.ID)
	wantErr(t, err, store.ErrNotFound, "DirectThreadByID(destroyed)")
	_, err = s.MessageByID(ctx, msg.ID)
	wantErr(t, err, store.ErrNotFound, "MessageByID(thread destroyed)")

	// Leaving a dm frees the pair: the next create gets a fresh thread.
	dm := mkThread(t, s, alice.ID, bob.ID)
	if _, err := s.LeaveDirectThread(ctx, dm.ID, alice.ID); err != nil {
		t.Fatalf("LeaveDirectThread(dm) error = %v", err)
	}
	fresh, created, err := s.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID: alice.ID, ParticipantIDs: []string{bob.ID},
	})
	if err != nil {
		t.Fatalf("CreateDirectThread(recreate) error = %v", err)
	}
	if !created || fresh.ID == dm.ID {
		t.Errorf("recreate = (%q, %v), want a fresh thread", fresh.ID, created)
	}
}

func testReadMarkers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")
	other := mkChannel(t, s, srv.ID, "random")
	m := mkMessage(t, s, ch.ID, alice.ID, "read me")

	sentinel, err := s.ReadMarker(ctx, ch.ID, alice.ID)
	if err != nil {
		t.Fatalf("ReadMarker(unwritten) error = %v", err)
	}
	if sentinel.LastReadMessageID != "" || !sentinel.UpdatedAt.IsZero() {
		t.Errorf("sentinel = %+v, want empty marker", sentinel)
	}
	if sentinel.ConversationID != ch.ID || sentinel.UserID != alice.ID {
		t.Errorf("sentinel identity = %q/%q", sentinel.ConversationID, sentinel.UserID)
	}

	marker, err := s.SetReadMarker(ctx, ch.ID, alice.ID, m.ID)
	if err != nil {
		t.Fatalf("SetReadMarker() error = %v", err)
	}
	if marker.LastReadMessageID != m.ID || marker.UpdatedAt.IsZero() {
		t.Errorf("marker = %+v", marker)
	}

	_, err = s.SetReadMarker(ctx, other.ID, alice.ID, m.ID)
	wantErr(t, err, store.ErrMarkerMessage, "SetReadMarker(foreign message)")

	// Clearing writes an empty marker rather than deleting the row.
	cleared, err := s.SetReadMarker(ctx, ch.ID, alice.ID, "")
	if err != nil {
		t.Fatalf("SetReadMarker(clear) error = %v", err)
	}
	if cleared.LastReadMessageID != "" {
		t.Errorf("cleared marker = %+v", cleared)
	}

	_, err = s.ReadMarker(ctx, "chn_missing", alice.ID)
	wantErr(t, err, store.ErrNotFound, "ReadMarker(unknown conversation)")
}

func testPresence(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")

	// No record reads as offline, not as an error.
	p, err := s.PresenceByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("PresenceByUser(no record) error = %v", err)
	}
	if p.Status != model.PresenceOffline {
		t.Errorf("status = %q, want offline", p.Status)
	}
	_, err = s.PresenceByUser(ctx, "usr_missing")
	wantErr(t, err, store.ErrNotFound, "PresenceByUser(unknown user)")

	set, err := s.SetPresence(ctx, alice.ID, model.PresenceOnline, 2*time.Minute)
	if err != nil {
		t.Fatalf("SetPresence() error = %v", err)
	}
	if set.ExpiresAt.IsZero() || set.LastSeenAt.IsZero() {
		t.Errorf("online presence = %+v, want expiry and lastSeenAt", set)
	}

	off, err := s.SetPresence(ctx, bob.ID, model.PresenceOffline, 2*time.Minute)
	if err != nil {
		t.Fatalf("SetPresence(offline) error = %v", err)
	}
	if !off.ExpiresAt.IsZero() {
		t.Errorf("offline presence carries expiry: %+v", off)
	}

	// An overdue heartbeat reads back as offline.
	if _, err := s.SetPresence(ctx, bob.ID, model.PresenceDND, -time.Second); err != nil {
		t.Fatalf("SetPresence(overdue) error = %v", err)
	}
	p, _ = s.PresenceByUser(ctx, bob.ID)
	if p.Status != model.PresenceOffline {
		t.Errorf("overdue status = %q, want offline", p.Status)
	}

	bulk, err := s.PresenceBulk(ctx, []string{alice.ID, bob.ID, "usr_missing"})
	if err != nil {
		t.Fatalf("PresenceBulk() error = %v", err)
	}
	if len(bulk) != 2 {
		t.Errorf("PresenceBulk() = %d entries, want 2 (unknown ids skipped)", len(bulk))
	}

	// Sweep flips overdue records and reports exactly those.
	if _, err := s.SetPresence(ctx, bob.ID, model.PresenceIdle, -time.Second); err != nil {
		t.Fatalf("SetPresence() error = %v", err)
	}
	flipped, err := s.SweepPresences(ctx)
	if err != nil {
		t.Fatalf("SweepPresences() error = %v", err)
	}
	if len(flipped) != 1 || flipped[0].UserID != bob.ID || flipped[0].Status != model.PresenceOffline {
		t.Errorf("SweepPresences() = %+v, want bob flipped offline", flipped)
	}
	if flipped, _ = s.SweepPresences(ctx); len(flipped) != 0 {
		t.Errorf("second sweep flipped %d records, want 0", len(flipped))
	}
}

func testPush(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")

	sub, err := s.CreatePushSubscription(ctx, store.CreatePushParams{
		UserID: alice.ID, Endpoint: "https://push.example/a", P256dh: "key1", Auth: "auth1", UserAgent: "firefox",
	})
	if err != nil {
		t.Fatalf("CreatePushSubscription() error = %v", err)
	}

	// Same endpoint re-registers under the same id with fresh keys.
	renewed, err := s.CreatePushSubscription(ctx, store.CreatePushParams{
		UserID: alice.ID, Endpoint: "https://push.example/a", P256dh: "key2", Auth: "auth2",
	})
	if err != nil {
		t.Fatalf("CreatePushSubscription(renew) error = %v", err)
	}
	if renewed.ID != sub.ID || renewed.P256dh != "key2" {
		t.Errorf("renewed = %+v, want same id with key2", renewed)
	}

	if _, err := s.CreatePushSubscription(ctx, store.CreatePushParams{
		UserID: alice.ID, Endpoint: "https://push.example/b", P256dh: "k", Auth: "a",
	}); err != nil {
		t.Fatalf("CreatePushSubscription(second) error = %v", err)
	}

	subs, err := s.PushSubscriptions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("PushSubscriptions() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("PushSubscriptions() = %d entries, want 2", len(subs))
	}

	// Another user cannot delete alice's subscription.
	if err := s.DeletePushSubscription(ctx, bob.ID, sub.ID); err != nil {
		t.Fatalf("DeletePushSubscription(foreign) error = %v", err)
	}
	if subs, _ = s.PushSubscriptions(ctx, alice.ID); len(subs) != 2 {
		t.Errorf("foreign delete removed a subscription")
	}

	if err := s.DeletePushSubscription(ctx, alice.ID, sub.ID); err != nil {
		t.Fatalf("DeletePushSubscription() error = %v", err)
	}
	if subs, _ = s.PushSubscriptions(ctx, alice.ID); len(subs) != 1 {
		t.Errorf("PushSubscriptions() after delete = %d, want 1", len(subs))
	}

	_, err = s.CreatePushSubscription(ctx, store.CreatePushParams{UserID: "usr_missing", Endpoint: "e", P256dh: "k", Auth: "a"})
	wantErr(t, err, store.ErrNotFound, "CreatePushSubscription(unknown user)")
}
