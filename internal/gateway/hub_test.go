package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aledlb8/Mango-sub000/internal/config"
	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/store"
	"github.com/aledlb8/Mango-sub000/internal/store/memstore"
)

func testHub(t *testing.T) (*Hub, store.Store) {
	t.Helper()
	st := memstore.New()
	t.Cleanup(st.Close)
	cfg := &config.Config{GatewaySendBuffer: 16, GatewayMaxConnections: 100}
	return NewHub(st, cfg, zerolog.Nop()), st
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

func newTestClient(hub *Hub, userID string) *Client {
	return newClient(hub, nil, userID, hub.sendBuffer, zerolog.Nop())
}

// recv pops the next frame from the client's send channel and decodes it.
func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

func wantNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected frame: %s", msg)
	default:
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)
	u := newUser(t, st, "alice")

	c1 := newTestClient(hub, u.ID)
	c2 := newTestClient(hub, u.ID)
	if err := hub.register(c1); err != nil {
		t.Fatalf("register(c1) error = %v", err)
	}
	if err := hub.register(c2); err != nil {
		t.Fatalf("register(c2) error = %v", err)
	}

	hub.mu.Lock()
	if got := len(hub.userSockets[u.ID]); got != 2 {
		t.Errorf("userSockets = %d sockets, want 2", got)
	}
	hub.mu.Unlock()

	hub.unregister(c1)
	// Unregister is idempotent.
	hub.unregister(c1)

	hub.mu.Lock()
	if got := len(hub.userSockets[u.ID]); got != 1 {
		t.Errorf("userSockets after unregister = %d sockets, want 1", got)
	}
	if hub.connections != 1 {
		t.Errorf("connections = %d, want 1", hub.connections)
	}
	hub.mu.Unlock()

	// The removed client's send channel is closed.
	if _, ok := <-c1.send; ok {
		t.Error("send channel still open after unregister")
	}
}

func TestRegisterMaxConnections(t *testing.T) {
	t.Parallel()
	st := memstore.New()
	t.Cleanup(st.Close)
	cfg := &config.Config{GatewaySendBuffer: 16, GatewayMaxConnections: 1}
	hub := NewHub(st, cfg, zerolog.Nop())

	u := newUser(t, st, "alice")

	if err := hub.register(newTestClient(hub, u.ID)); err != nil {
		t.Fatalf("register(first) error = %v", err)
	}
	if err := hub.register(newTestClient(hub, u.ID)); err != ErrMaxConnections {
		t.Errorf("register(second) error = %v, want ErrMaxConnections", err)
	}
}

func TestSubscribeChannel(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)
	ctx := context.Background()

	owner := newUser(t, st, "owner")
	member := newUser(t, st, "member")
	outsider := newUser(t, st, "outsider")

	srv, err := st.CreateServer(ctx, owner.ID, "Test Server")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	ch, err := st.CreateChannel(ctx, srv.ID, "general", model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if _, err := st.AddMember(ctx, srv.ID, member.ID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	mc := newTestClient(hub, member.ID)
	if err := hub.register(mc); err != nil {
		t.Fatalf("register(member) error = %v", err)
	}
	hub.subscribe(mc, ch.ID)

	env := recv(t, mc)
	if env.Type != EventSubscribed {
		t.Fatalf("frame type = %q, want %q", env.Type, EventSubscribed)
	}

	hub.mu.Lock()
	if _, ok := hub.conversationSockets[ch.ID][mc]; !ok {
		t.Error("member socket missing from conversation index")
	}
	hub.mu.Unlock()

	// Non-members get an error frame and no subscription.
	oc := newTestClient(hub, outsider.ID)
	if err := hub.register(oc); err != nil {
		t.Fatalf("register(outsider) error = %v", err)
	}
	hub.subscribe(oc, ch.ID)

	env = recv(t, oc)
	if env.Type != EventError {
		t.Fatalf("frame type = %q, want %q", env.Type, EventError)
	}

	hub.mu.Lock()
	if _, ok := hub.conversationSockets[ch.ID][oc]; ok {
		t.Error("outsider socket present in conversation index")
	}
	hub.mu.Unlock()

	// Unknown conversations are also an error frame.
	hub.subscribe(oc, "chn_missing")
	if env := recv(t, oc); env.Type != EventError {
		t.Errorf("frame type = %q, want %q", env.Type, EventError)
	}
}

func TestSubscribeThread(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)
	ctx := context.Background()

	alice := newUser(t, st, "alice")
	bob := newUser(t, st, "bob")
	eve := newUser(t, st, "eve")

	th, _, err := st.CreateDirectThread(ctx, store.CreateThreadParams{
		OwnerID:        alice.ID,
		ParticipantIDs: []string{alice.ID, bob.ID},
	})
	if err != nil {
		t.Fatalf("CreateDirectThread() error = %v", err)
	}

	bc := newTestClient(hub, bob.ID)
	if err := hub.register(bc); err != nil {
		t.Fatalf("register(bob) error = %v", err)
	}
	hub.subscribe(bc, th.ID)
	if env := recv(t, bc); env.Type != EventSubscribed {
		t.Fatalf("participant frame type = %q, want %q", env.Type, EventSubscribed)
	}

	ec := newTestClient(hub, eve.ID)
	if err := hub.register(ec); err != nil {
		t.Fatalf("register(eve) error = %v", err)
	}
	hub.subscribe(ec, th.ID)
	if env := recv(t, ec); env.Type != EventError {
		t.Errorf("non-participant frame type = %q, want %q", env.Type, EventError)
	}
}

func TestPublishFanOut(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)
	ctx := context.Background()

	owner := newUser(t, st, "owner")
	member := newUser(t, st, "member")
	bystander := newUser(t, st, "bystander")

	srv, err := st.CreateServer(ctx, owner.ID, "Test Server")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	ch, err := st.CreateChannel(ctx, srv.ID, "general", model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if _, err := st.AddMember(ctx, srv.ID, member.ID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	oc := newTestClient(hub, owner.ID)
	mc := newTestClient(hub, member.ID)
	bc := newTestClient(hub, bystander.ID)
	for _, c := range []*Client{oc, mc, bc} {
		if err := hub.register(c); err != nil {
			t.Fatalf("register() error = %v", err)
		}
	}
	hub.subscribe(oc, ch.ID)
	hub.subscribe(mc, ch.ID)
	recv(t, oc) // subscribed acks
	recv(t, mc)

	hub.Publish(ch.ID, EventMessageCreated, map[string]string{"id": "msg_1"})

	for _, c := range []*Client{oc, mc} {
		env := recv(t, c)
		if env.Type != EventMessageCreated {
			t.Errorf("frame type = %q, want %q", env.Type, EventMessageCreated)
		}
	}
	wantNoFrame(t, bc)

	// User fan-out unions with the subscriber set without duplicating
	// frames for sockets present in both.
	hub.Publish(ch.ID, EventMessageCreated, map[string]string{"id": "msg_2"}, member.ID, bystander.ID)

	for _, c := range []*Client{oc, mc, bc} {
		env := recv(t, c)
		if env.Type != EventMessageCreated {
			t.Errorf("frame type = %q, want %q", env.Type, EventMessageCreated)
		}
	}
	wantNoFrame(t, mc)

	// Empty conversation id addresses by user fan-out alone.
	hub.Publish("", EventPresenceUpdated, nil, bystander.ID)
	if env := recv(t, bc); env.Type != EventPresenceUpdated {
		t.Errorf("frame type = %q, want %q", env.Type, EventPresenceUpdated)
	}
	wantNoFrame(t, oc)
	wantNoFrame(t, mc)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)
	ctx := context.Background()

	owner := newUser(t, st, "owner")
	srv, err := st.CreateServer(ctx, owner.ID, "Test Server")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	ch, err := st.CreateChannel(ctx, srv.ID, "general", model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	c := newTestClient(hub, owner.ID)
	if err := hub.register(c); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	hub.subscribe(c, ch.ID)
	recv(t, c)

	hub.unsubscribe(c, ch.ID)
	if env := recv(t, c); env.Type != EventUnsubscribed {
		t.Fatalf("frame type = %q, want %q", env.Type, EventUnsubscribed)
	}

	hub.Publish(ch.ID, EventMessageCreated, map[string]string{"id": "msg_1"})
	wantNoFrame(t, c)

	hub.mu.Lock()
	if _, ok := hub.conversationSockets[ch.ID]; ok {
		t.Error("empty conversation set not removed from index")
	}
	hub.mu.Unlock()
}

func TestUnregisterClearsSubscriptions(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)
	ctx := context.Background()

	owner := newUser(t, st, "owner")
	srv, err := st.CreateServer(ctx, owner.ID, "Test Server")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}
	ch, err := st.CreateChannel(ctx, srv.ID, "general", model.ChannelText)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	c := newTestClient(hub, owner.ID)
	if err := hub.register(c); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	hub.subscribe(c, ch.ID)
	recv(t, c)

	hub.unregister(c)

	hub.mu.Lock()
	if _, ok := hub.conversationSockets[ch.ID]; ok {
		t.Error("conversation index still references unregistered client")
	}
	if _, ok := hub.userSockets[owner.ID]; ok {
		t.Error("user index still references unregistered client")
	}
	hub.mu.Unlock()
}

func TestPublishDropsSlowClient(t *testing.T) {
	t.Parallel()
	st := memstore.New()
	t.Cleanup(st.Close)
	cfg := &config.Config{GatewaySendBuffer: 2, GatewayMaxConnections: 100}
	hub := NewHub(st, cfg, zerolog.Nop())

	u := newUser(t, st, "alice")
	c := newTestClient(hub, u.ID)
	if err := hub.register(c); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	// Nothing drains the send channel, so the third publish overflows the
	// buffer and the client is dropped.
	for i := 0; i < 3; i++ {
		hub.Publish("", EventPresenceUpdated, map[string]int{"n": i}, u.ID)
	}

	hub.mu.Lock()
	if _, ok := hub.userSockets[u.ID]; ok {
		t.Error("slow client still registered after overflow")
	}
	hub.mu.Unlock()
}

func TestEncodeEnvelope(t *testing.T) {
	t.Parallel()

	data, err := Encode(EventPong, nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(data) != `{"type":"pong"}` {
		t.Errorf("pong frame = %s, want {\"type\":\"pong\"}", data)
	}

	data, err = Encode(EventReady, readyPayload{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"type":"ready","payload":{"userId":"usr_1"}}`
	if string(data) != want {
		t.Errorf("ready frame = %s, want %s", data, want)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	t.Parallel()
	hub, st := testHub(t)

	clients := make([]*Client, 0, 3)
	for i := 0; i < 3; i++ {
		u := newUser(t, st, fmt.Sprintf("user%d", i))
		c := newTestClient(hub, u.ID)
		if err := hub.register(c); err != nil {
			t.Fatalf("register() error = %v", err)
		}
		clients = append(clients, c)
	}

	hub.Shutdown()

	hub.mu.Lock()
	if hub.connections != 0 {
		t.Errorf("connections = %d, want 0", hub.connections)
	}
	hub.mu.Unlock()

	for _, c := range clients {
		if _, ok := <-c.send; ok {
			t.Error("send channel still open after shutdown")
		}
	}
}
