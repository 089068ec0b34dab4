package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/store/memstore"
)

func testEnqueuer(t *testing.T) (*Enqueuer, *miniredis.Miniredis, store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := memstore.New()
	t.Cleanup(st.Close)
	return NewEnqueuer(st, rdb, "https://mango.test/", zerolog.Nop()), mr, st
}

func newUser(t *testing.T, st store.Store, username string) *model.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), store.CreateUserParams{
		Email:        username + "@example.com",
		Username:     username,
		DisplayName:  "User " + username,
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	return u
}

// queueRecords decodes every record currently on the queue.
func queueRecords(t *testing.T, mr *miniredis.Miniredis) []Notification {
	t.Helper()
	items, err := mr.List(QueueKey)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	records := make([]Notification, len(items))
	for i, item := range items {
		if err := json.Unmarshal([]byte(item), &records[i]); err != nil {
			t.Fatalf("decode record %d: %v", i, err)
		}
	}
	return records
}

// waitForRecords polls until the queue holds at least want records, for the
// fire-and-forget path where the push happens on a background goroutine.
func waitForRecords(t *testing.T, mr *miniredis.Miniredis, want int) []Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if items, err := mr.List(QueueKey); err == nil && len(items) >= want {
			return queueRecords(t, mr)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued records", want)
	return nil
}

func TestConnect(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestConnectValkeyScheme(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "valkey://"+mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestConnectErrors(t *testing.T) {
	t.Parallel()

	if _, err := Connect(context.Background(), "://bad", time.Second); err == nil {
		t.Fatal("Connect() with malformed URL expected error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(context.Background(), "redis://"+addr, 100*time.Millisecond); err == nil {
		t.Fatal("Connect() with unreachable server expected error")
	}
}

func TestEnqueueChannelMessage(t *testing.T) {
	t.Parallel()
	e, mr, st := testEnqueuer(t)
	ctx := context.Background()

	alice := newUser(t, st, "alice")
	bob := newUser(t, st, "bob")
	eve := newUser(t, st, "eve")

	server, err := st.CreateServer(ctx, alice.ID, "Gaming Hub")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	for _, u := range []*model.User{bob, eve} {
		if _, err := st.AddMember(ctx, server.ID, u.ID); err != nil {
			t.Fatalf("AddMember(%q) error = %v", u.Username, err)
		}
	}
	channel, err := st.CreateChannel(ctx, server.ID, "general", model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	// Eve loses read access to this channel, so she must not be notified.
	_, err = st.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID:  channel.ID,
		TargetType: permission.TargetMember,
		TargetID:   eve.ID,
		Deny:       permission.Of(permission.ReadMessages),
	})
	if err != nil {
		t.Fatalf("UpsertOverwrite() error = %v", err)
	}

	msg, err := st.CreateMessage(ctx, store.CreateMessageParams{
		ChannelID: channel.ID,
		AuthorID:  alice.ID,
		Body:      "anyone up for a raid tonight?",
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := e.enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}

	records := queueRecords(t, mr)
	if len(records) != 1 {
		t.Fatalf("queued %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.UserID != bob.ID {
		t.Errorf("UserID = %q, want %q", rec.UserID, bob.ID)
	}
	if rec.Title != "#general (Gaming Hub)" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Body != msg.Body {
		t.Errorf("Body = %q, want %q", rec.Body, msg.Body)
	}
	wantURL := "https://mango.test/conversations/" + msg.ConversationID + "/" + msg.ID
	if rec.URL != wantURL {
		t.Errorf("URL = %q, want %q", rec.URL, wantURL)
	}
	if rec.MessageID != msg.ID {
		t.Errorf("MessageID = %q, want %q", rec.MessageID, msg.ID)
	}
}

func TestEnqueueThreadMessage(t *testing.T) {
	t.Parallel()
	e, mr, st := testEnqueuer(t)
	ctx := context.Background()

	alice := newUser(t, st, "alice")
	bob := newUser(t, st, "bob")

	thread, _, err := st.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID:        alice.ID,
		ParticipantIDs: []string{alice.ID, bob.ID},
	})
	if err != nil {
		t.Fatalf("CreateDirectThread() error = %v", err)
	}
	msg, err := st.CreateMessage(ctx, store.CreateMessageParams{
		DirectThreadID: thread.ID,
		AuthorID:       alice.ID,
		Body:           "hey",
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := e.enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}

	records := queueRecords(t, mr)
	if len(records) != 1 {
		t.Fatalf("queued %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.UserID != bob.ID {
		t.Errorf("UserID = %q, want %q", rec.UserID, bob.ID)
	}
	if rec.Title != "New direct message" {
		t.Errorf("Title = %q", rec.Title)
	}
	wantURL := "https://mango.test/conversations/" + thread.ID + "/" + msg.ID
	if rec.URL != wantURL {
		t.Errorf("URL = %q, want %q", rec.URL, wantURL)
	}
}

func TestEnqueueGroupThreadTitle(t *testing.T) {
	t.Parallel()
	e, mr, st := testEnqueuer(t)
	ctx := context.Background()

	alice := newUser(t, st, "alice")
	bob := newUser(t, st, "bob")
	carol := newUser(t, st, "carol")

	thread, _, err := st.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID:        alice.ID,
		ParticipantIDs: []string{alice.ID, bob.ID, carol.ID},
		Title:          "weekend plans",
	})
	if err != nil {
		t.Fatalf("CreateDirectThread() error = %v", err)
	}
	msg, err := st.CreateMessage(ctx, store.CreateMessageParams{
		DirectThreadID: thread.ID,
		AuthorID:       bob.ID,
		Body:           "saturday works for me",
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := e.enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}

	records := queueRecords(t, mr)
	if len(records) != 2 {
		t.Fatalf("queued %d records, want 2", len(records))
	}
	got := map[string]bool{}
	for _, rec := range records {
		got[rec.UserID] = true
		if rec.Title != "weekend plans" {
			t.Errorf("Title = %q, want %q", rec.Title, "weekend plans")
		}
	}
	if !got[alice.ID] || !got[carol.ID] || got[bob.ID] {
		t.Errorf("recipients = %v, want alice and carol only", got)
	}
}

func TestEnqueueNoRecipients(t *testing.T) {
	t.Parallel()
	e, mr, st := testEnqueuer(t)
	ctx := context.Background()

	alice := newUser(t, st, "alice")
	server, err := st.CreateServer(ctx, alice.ID, "Solo")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	channel, err := st.CreateChannel(ctx, server.ID, "general", model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	msg, err := st.CreateMessage(ctx, store.CreateMessageParams{
		ChannelID: channel.ID,
		AuthorID:  alice.ID,
		Body:      "talking to myself",
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	if err := e.enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}
	if mr.Exists(QueueKey) {
		t.Fatal("queue should stay empty when the author is the only reader")
	}
}

func TestEnqueueBodyTruncation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "short body unchanged",
			body: "hello",
			want: "hello",
		},
		{
			name: "long body truncated",
			body: strings.Repeat("a", 200),
			want: strings.Repeat("a", 140) + "…",
		},
		{
			name: "multibyte body truncated on rune boundary",
			body: strings.Repeat("é", 150),
			want: strings.Repeat("é", 140) + "…",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateBody(tt.body); got != tt.want {
				t.Errorf("truncateBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnqueueUnknownThread(t *testing.T) {
	t.Parallel()
	e, _, _ := testEnqueuer(t)

	err := e.enqueue(context.Background(), &model.Message{
		ID:             "msg_1",
		DirectThreadID: "thr_missing",
		ConversationID: "thr_missing",
		AuthorID:       "usr_1",
		Body:           "hello",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("enqueue() error = %v, want ErrNotFound", err)
	}
}

func TestMessageCreatedFireAndForget(t *testing.T) {
	t.Parallel()
	e, mr, st := testEnqueuer(t)
	ctx := context.Background()

	alice := newUser(t, st, "alice")
	bob := newUser(t, st, "bob")
	thread, _, err := st.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID:        alice.ID,
		ParticipantIDs: []string{alice.ID, bob.ID},
	})
	if err != nil {
		t.Fatalf("CreateDirectThread() error = %v", err)
	}
	msg, err := st.CreateMessage(ctx, store.CreateMessageParams{
		DirectThreadID: thread.ID,
		AuthorID:       alice.ID,
		Body:           "ping",
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	e.MessageCreated(msg)

	records := waitForRecords(t, mr, 1)
	if records[0].UserID != bob.ID {
		t.Errorf("UserID = %q, want %q", records[0].UserID, bob.ID)
	}
}

func TestMessageCreatedDisabled(t *testing.T) {
	t.Parallel()

	// Neither a nil enqueuer nor one without a Redis client may panic or
	// block; both drop the work silently.
	var nilEnqueuer *Enqueuer
	nilEnqueuer.MessageCreated(&model.Message{ID: "msg_1"})

	st := memstore.New()
	t.Cleanup(st.Close)
	disabled := NewEnqueuer(st, nil, "https://mango.test", zerolog.Nop())
	disabled.MessageCreated(&model.Message{ID: "msg_2"})
}
