package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func testWebhooks(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")

	wh, err := s.CreateWebhook(ctx, ch.ID, "deploys", alice.ID)
	if err != nil {
		t.Fatalf("CreateWebhook() error = %v", err)
	}
	if wh.Token == "" {
		t.Fatal("CreateWebhook() returned no token")
	}
	if wh.ServerID != srv.ID {
		t.Errorf("ServerID = %q, want %q", wh.ServerID, srv.ID)
	}

	// Listings never reveal the token.
	hooks, err := s.Webhooks(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Webhooks() error = %v", err)
	}
	if len(hooks) != 1 || hooks[0].Token != "" {
		t.Fatalf("Webhooks() = %+v, want one token-less entry", hooks)
	}

	resolved, err := s.WebhookByToken(ctx, wh.ID, wh.Token)
	if err != nil {
		t.Fatalf("WebhookByToken() error = %v", err)
	}
	if resolved.ID != wh.ID {
		t.Errorf("resolved id = %q, want %q", resolved.ID, wh.ID)
	}
	_, err = s.WebhookByToken(ctx, wh.ID, "wrong-token")
	wantErr(t, err, store.ErrNotFound, "WebhookByToken(bad token)")

	err = s.DeleteWebhook(ctx, "chn_other", wh.ID)
	wantErr(t, err, store.ErrNotFound, "DeleteWebhook(wrong channel)")
	if err := s.DeleteWebhook(ctx, ch.ID, wh.ID); err != nil {
		t.Fatalf("DeleteWebhook() error = %v", err)
	}
	_, err = s.WebhookByToken(ctx, wh.ID, wh.Token)
	wantErr(t, err, store.ErrNotFound, "WebhookByToken(deleted)")

	// Channel deletion takes its webhooks with it.
	wh2, err := s.CreateWebhook(ctx, ch.ID, "alerts", alice.ID)
	if err != nil {
		t.Fatalf("CreateWebhook() error = %v", err)
	}
	if err := s.DeleteChannel(ctx, ch.ID); err != nil {
		t.Fatalf("DeleteChannel() error = %v", err)
	}
	_, err = s.WebhookByToken(ctx, wh2.ID, wh2.Token)
	wantErr(t, err, store.ErrNotFound, "WebhookByToken(channel deleted)")
}

func testBots(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	srv := mkServer(t, s, alice.ID, "den")

	bot, token, err := s.CreateBot(ctx, store.CreateBotParams{
		ServerID: srv.ID, CreatorID: alice.ID, Username: "deploybot", DisplayName: "Deploy Bot",
	})
	if err != nil {
		t.Fatalf("CreateBot() error = %v", err)
	}
	if !bot.Bot {
		t.Error("bot user not flagged")
	}
	if token == "" {
		t.Fatal("CreateBot() returned no token")
	}

	// The token is a working session.
	resolved, err := s.SessionUser(ctx, token)
	if err != nil {
		t.Fatalf("SessionUser(bot token) error = %v", err)
	}
	if resolved.ID != bot.ID {
		t.Errorf("token resolves to %q, want %q", resolved.ID, bot.ID)
	}

	if _, err := s.Member(ctx, srv.ID, bot.ID); err != nil {
		t.Errorf("Member(bot) error = %v", err)
	}

	bots, err := s.Bots(ctx, srv.ID)
	if err != nil {
		t.Fatalf("Bots() error = %v", err)
	}
	if len(bots) != 1 || bots[0].ID != bot.ID {
		t.Fatalf("Bots() = %+v, want the installed bot", bots)
	}

	_, _, err = s.CreateBot(ctx, store.CreateBotParams{
		ServerID: srv.ID, CreatorID: alice.ID, Username: "deploybot",
	})
	wantErr(t, err, store.ErrUsernameTaken, "CreateBot(dup username)")
	_, _, err = s.CreateBot(ctx, store.CreateBotParams{
		ServerID: "srv_missing", CreatorID: alice.ID, Username: "otherbot",
	})
	wantErr(t, err, store.ErrNotFound, "CreateBot(unknown server)")
}

func testSearch(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	cara := mkUser(t, s, "carol")

	users, err := s.SearchUsers(ctx, alice.ID, "o")
	if err != nil {
		t.Fatalf("SearchUsers() error = %v", err)
	}
	if len(users) != 2 || users[0].Username != "bob" || users[1].Username != "carol" {
		t.Fatalf("SearchUsers() = %+v, want [bob carol]", users)
	}
	// The caller never matches themselves.
	if users, _ = s.SearchUsers(ctx, alice.ID, "alice"); len(users) != 0 {
		t.Errorf("SearchUsers(self) = %d entries, want 0", len(users))
	}

	srv := mkServer(t, s, alice.ID, "den")
	general := mkChannel(t, s, srv.ID, "general")
	secret := mkChannel(t, s, srv.ID, "secret-plans")
	mkMember(t, s, srv.ID, bob.ID)

	// Hide the secret channel from everyone but the owner.
	roles, _ := s.Roles(ctx, srv.ID)
	if _, err := s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: secret.ID, TargetType: permission.TargetRole, TargetID: roles[0].ID,
		Deny: permission.Of(permission.ReadMessages),
	}); err != nil {
		t.Fatalf("UpsertOverwrite() error = %v", err)
	}

	channels, err := s.SearchChannels(ctx, store.SearchParams{CallerID: bob.ID, Query: "e"})
	if err != nil {
		t.Fatalf("SearchChannels() error = %v", err)
	}
	if len(channels) != 1 || channels[0].ID != general.ID {
		t.Fatalf("SearchChannels(bob) = %+v, want [general]", channels)
	}
	if channels, _ = s.SearchChannels(ctx, store.SearchParams{CallerID: alice.ID, Query: "e"}); len(channels) != 2 {
		t.Errorf("SearchChannels(owner) = %d entries, want 2", len(channels))
	}
	// Non-members see nothing.
	if channels, _ = s.SearchChannels(ctx, store.SearchParams{CallerID: cara.ID, Query: "e"}); len(channels) != 0 {
		t.Errorf("SearchChannels(outsider) = %d entries, want 0", len(channels))
	}

	mkMessage(t, s, general.ID, alice.ID, "quarterly numbers are up")
	mkMessage(t, s, secret.ID, alice.ID, "secret numbers are down")
	th := mkThread(t, s, alice.ID, bob.ID)
	if _, err := s.CreateMessage(ctx, store.CreateMessageParams{
		DirectThreadID: th.ID, AuthorID: alice.ID, Body: "private numbers",
	}); err != nil {
		t.Fatalf("CreateMessage(thread) error = %v", err)
	}

	// bob reads general and participates in the thread; the overwritten
	// channel stays invisible.
	msgs, err := s.SearchMessages(ctx, store.SearchParams{CallerID: bob.ID, Query: "numbers"})
	if err != nil {
		t.Fatalf("SearchMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("SearchMessages(bob) = %d entries, want 2", len(msgs))
	}
	// Newest first: the thread message was created last.
	if msgs[0].ConversationID != th.ID {
		t.Errorf("msgs[0] conversation = %q, want thread %q", msgs[0].ConversationID, th.ID)
	}

	// A server filter keeps only that server's channel messages.
	msgs, err = s.SearchMessages(ctx, store.SearchParams{CallerID: bob.ID, Query: "numbers", ServerID: srv.ID})
	if err != nil {
		t.Fatalf("SearchMessages(server) error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ConversationID != general.ID {
		t.Fatalf("SearchMessages(server filter) = %+v, want the general message", msgs)
	}

	// Outsiders get nothing at all.
	if msgs, _ = s.SearchMessages(ctx, store.SearchParams{CallerID: cara.ID, Query: "numbers"}); len(msgs) != 0 {
		t.Errorf("SearchMessages(outsider) = %d entries, want 0", len(msgs))
	}
}

func testPermissionContext(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	cara := mkUser(t, s, "cara")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")
	mkMember(t, s, srv.ID, bob.ID)

	// The owner holds everything.
	pc, err := s.PermissionContext(ctx, srv.ID, alice.ID, "")
	if err != nil {
		t.Fatalf("PermissionContext(owner) error = %v", err)
	}
	if !permission.Allows(pc.Query(alice.ID), permission.ManageServer) {
		t.Error("owner denied manage_server")
	}

	// A plain member gets the default role: read and send, no manage.
	pc, err = s.PermissionContext(ctx, srv.ID, bob.ID, "")
	if err != nil {
		t.Fatalf("PermissionContext(member) error = %v", err)
	}
	if !pc.IsMember {
		t.Error("IsMember = false for a member")
	}
	q := pc.Query(bob.ID)
	if !permission.Allows(q, permission.SendMessages) || permission.Allows(q, permission.ManageServer) {
		t.Errorf("member capabilities = %v", permission.Effective(q).Capabilities())
	}

	// Outsiders resolve with no roles and no access.
	pc, err = s.PermissionContext(ctx, srv.ID, cara.ID, "")
	if err != nil {
		t.Fatalf("PermissionContext(outsider) error = %v", err)
	}
	if pc.IsMember || len(pc.Roles) != 0 {
		t.Errorf("outsider context = %+v", pc)
	}
	if permission.Allows(pc.Query(cara.ID), permission.ReadMessages) {
		t.Error("outsider allowed read_messages")
	}

	// A role deny on the channel strips send; a member allow restores it,
	// because member overwrites apply after role overwrites.
	roles, _ := s.Roles(ctx, srv.ID)
	if _, err := s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetRole, TargetID: roles[0].ID,
		Deny: permission.Of(permission.SendMessages),
	}); err != nil {
		t.Fatalf("UpsertOverwrite(role deny) error = %v", err)
	}
	pc, _ = s.PermissionContext(ctx, srv.ID, bob.ID, ch.ID)
	if permission.Allows(pc.Query(bob.ID), permission.SendMessages) {
		t.Error("role deny did not strip send_messages")
	}

	if _, err := s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetMember, TargetID: bob.ID,
		Allow: permission.Of(permission.SendMessages),
	}); err != nil {
		t.Fatalf("UpsertOverwrite(member allow) error = %v", err)
	}
	pc, _ = s.PermissionContext(ctx, srv.ID, bob.ID, ch.ID)
	if !permission.Allows(pc.Query(bob.ID), permission.SendMessages) {
		t.Error("member allow did not restore send_messages")
	}

	// Overwrites are only assembled when a channel is named.
	pc, _ = s.PermissionContext(ctx, srv.ID, bob.ID, "")
	if len(pc.Overwrites) != 0 {
		t.Errorf("server-scoped context carries %d overwrites", len(pc.Overwrites))
	}
	_, err = s.PermissionContext(ctx, srv.ID, bob.ID, "chn_missing")
	wantErr(t, err, store.ErrNotFound, "PermissionContext(unknown channel)")

	// A timeout silences without blinding; a ban voids everything.
	expiry := time.Now().Add(5 * time.Minute)
	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID,
		Action: model.ModerationTimeout, ExpiresAt: &expiry,
	}); err != nil {
		t.Fatalf("Moderate(timeout) error = %v", err)
	}
	pc, _ = s.PermissionContext(ctx, srv.ID, bob.ID, "")
	q = pc.Query(bob.ID)
	if permission.Allows(q, permission.SendMessages) {
		t.Error("timed-out member allowed send_messages")
	}
	if !permission.Allows(q, permission.ReadMessages) {
		t.Error("timed-out member denied read_messages")
	}

	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationBan,
	}); err != nil {
		t.Fatalf("Moderate(ban) error = %v", err)
	}
	pc, _ = s.PermissionContext(ctx, srv.ID, bob.ID, "")
	if !pc.Banned {
		t.Error("Banned = false after ban")
	}
	if permission.Allows(pc.Query(bob.ID), permission.ReadMessages) {
		t.Error("banned user allowed read_messages")
	}
}
