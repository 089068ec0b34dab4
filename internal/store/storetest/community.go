package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

func testServers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")

	if srv.OwnerID != alice.ID {
		t.Errorf("OwnerID = %q, want %q", srv.OwnerID, alice.ID)
	}

	// Creation seeds @everyone and an all-capability Owner role.
	roles, err := s.Roles(ctx, srv.ID)
	if err != nil {
		t.Fatalf("Roles() error = %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("Roles() = %d entries, want 2", len(roles))
	}
	if !roles[0].IsDefault || roles[0].Name != "@everyone" {
		t.Errorf("roles[0] = %+v, want the default role first", roles[0])
	}
	if !roles[0].Permissions.Has(permission.ReadMessages) || roles[0].Permissions.Has(permission.ManageServer) {
		t.Errorf("default role grants = %v", roles[0].Permissions.Capabilities())
	}
	if roles[1].Permissions != permission.AllSet {
		t.Errorf("owner role grants = %v, want all", roles[1].Permissions.Capabilities())
	}

	// The owner is a member and holds the Owner role.
	m, err := s.Member(ctx, srv.ID, alice.ID)
	if err != nil {
		t.Fatalf("Member(owner) error = %v", err)
	}
	if len(m.RoleIDs) != 1 || m.RoleIDs[0] != roles[1].ID {
		t.Errorf("owner RoleIDs = %v, want [%s]", m.RoleIDs, roles[1].ID)
	}

	listed, err := s.ServersForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ServersForUser() error = %v", err)
	}
	if len(listed) != 1 || listed[0].ID != srv.ID {
		t.Errorf("ServersForUser() = %v, want [%s]", listed, srv.ID)
	}
	if got, _ := s.ServersForUser(ctx, bob.ID); len(got) != 0 {
		t.Errorf("ServersForUser(non-member) = %d entries, want 0", len(got))
	}

	ch := mkChannel(t, s, srv.ID, "general")
	msg := mkMessage(t, s, ch.ID, alice.ID, "first")

	if err := s.DeleteServer(ctx, srv.ID); err != nil {
		t.Fatalf("DeleteServer() error = %v", err)
	}
	_, err = s.ServerByID(ctx, srv.ID)
	wantErr(t, err, store.ErrNotFound, "ServerByID(deleted)")
	_, err = s.ChannelByID(ctx, ch.ID)
	wantErr(t, err, store.ErrNotFound, "ChannelByID(cascaded)")
	_, err = s.MessageByID(ctx, msg.ID)
	wantErr(t, err, store.ErrNotFound, "MessageByID(cascaded)")
	_, err = s.Roles(ctx, srv.ID)
	wantErr(t, err, store.ErrNotFound, "Roles(deleted server)")
}

func testMembers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")

	if _, err := s.AddMember(ctx, srv.ID, bob.ID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	// Idempotent re-add.
	if _, err := s.AddMember(ctx, srv.ID, bob.ID); err != nil {
		t.Fatalf("AddMember(again) error = %v", err)
	}

	members, err := s.Members(ctx, srv.ID)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Members() = %d entries, want 2", len(members))
	}
	if members[0].UserID != alice.ID {
		t.Errorf("members[0] = %q, want the owner (joined first)", members[0].UserID)
	}

	_, err = s.AddMember(ctx, srv.ID, "usr_missing")
	wantErr(t, err, store.ErrNotFound, "AddMember(unknown user)")
	_, err = s.AddMember(ctx, "srv_missing", bob.ID)
	wantErr(t, err, store.ErrNotFound, "AddMember(unknown server)")

	if err := s.RemoveMember(ctx, srv.ID, bob.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	_, err = s.Member(ctx, srv.ID, bob.ID)
	wantErr(t, err, store.ErrNotFound, "Member(removed)")
	err = s.RemoveMember(ctx, srv.ID, bob.ID)
	wantErr(t, err, store.ErrNotFound, "RemoveMember(absent)")
}

func testRoles(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")
	mkMember(t, s, srv.ID, bob.ID)

	mod, err := s.CreateRole(ctx, srv.ID, "Moderator", permission.Of(permission.ManageChannels, permission.ReadMessages, permission.SendMessages))
	if err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}

	m, err := s.AssignRole(ctx, srv.ID, bob.ID, mod.ID)
	if err != nil {
		t.Fatalf("AssignRole() error = %v", err)
	}
	if len(m.RoleIDs) != 1 || m.RoleIDs[0] != mod.ID {
		t.Errorf("RoleIDs = %v, want [%s]", m.RoleIDs, mod.ID)
	}
	// Idempotent re-assign.
	m, err = s.AssignRole(ctx, srv.ID, bob.ID, mod.ID)
	if err != nil {
		t.Fatalf("AssignRole(again) error = %v", err)
	}
	if len(m.RoleIDs) != 1 {
		t.Errorf("RoleIDs after re-assign = %v", m.RoleIDs)
	}

	_, err = s.AssignRole(ctx, srv.ID, "usr_missing", mod.ID)
	wantErr(t, err, store.ErrNotFound, "AssignRole(non-member)")

	roles, _ := s.Roles(ctx, srv.ID)
	var def model.Role
	for _, r := range roles {
		if r.IsDefault {
			def = r
		}
	}

	// The default role keeps its name but its grants may change.
	name := "renamed"
	_, err = s.UpdateRole(ctx, srv.ID, def.ID, store.UpdateRoleParams{Name: &name})
	wantErr(t, err, store.ErrImmutableRole, "UpdateRole(default name)")
	wider := permission.Of(permission.ReadMessages, permission.SendMessages, permission.ManageChannels)
	updated, err := s.UpdateRole(ctx, srv.ID, def.ID, store.UpdateRoleParams{Permissions: &wider})
	if err != nil {
		t.Fatalf("UpdateRole(default grants) error = %v", err)
	}
	if updated.Permissions != wider {
		t.Errorf("default grants = %v, want %v", updated.Permissions.Capabilities(), wider.Capabilities())
	}
	err = s.DeleteRole(ctx, srv.ID, def.ID)
	wantErr(t, err, store.ErrImmutableRole, "DeleteRole(default)")

	// Deleting a custom role drops its assignments and any overwrites on it.
	ch := mkChannel(t, s, srv.ID, "general")
	if _, err := s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetRole, TargetID: mod.ID,
		Deny: permission.Of(permission.SendMessages),
	}); err != nil {
		t.Fatalf("UpsertOverwrite() error = %v", err)
	}
	if err := s.DeleteRole(ctx, srv.ID, mod.ID); err != nil {
		t.Fatalf("DeleteRole() error = %v", err)
	}
	m, _ = s.Member(ctx, srv.ID, bob.ID)
	if len(m.RoleIDs) != 0 {
		t.Errorf("RoleIDs after role deletion = %v, want none", m.RoleIDs)
	}
	ows, _ := s.Overwrites(ctx, ch.ID)
	if len(ows) != 0 {
		t.Errorf("overwrites after role deletion = %d, want 0", len(ows))
	}

	m, err = s.UnassignRole(ctx, srv.ID, bob.ID, "rol_missing")
	if err != nil {
		t.Fatalf("UnassignRole(absent) error = %v", err)
	}
	if len(m.RoleIDs) != 0 {
		t.Errorf("RoleIDs = %v, want none", m.RoleIDs)
	}
}

func testOverwrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")
	mkMember(t, s, srv.ID, bob.ID)

	ow, err := s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetMember, TargetID: bob.ID,
		Allow: permission.Of(permission.ManageChannels),
	})
	if err != nil {
		t.Fatalf("UpsertOverwrite() error = %v", err)
	}

	// Upserting the same slot replaces allow/deny but keeps the identity.
	replaced, err := s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetMember, TargetID: bob.ID,
		Deny: permission.Of(permission.SendMessages),
	})
	if err != nil {
		t.Fatalf("UpsertOverwrite(replace) error = %v", err)
	}
	if replaced.ID != ow.ID {
		t.Errorf("replacement id = %q, want %q", replaced.ID, ow.ID)
	}
	if replaced.Allow != 0 || !replaced.Deny.Has(permission.SendMessages) {
		t.Errorf("replacement = allow %v deny %v", replaced.Allow.Capabilities(), replaced.Deny.Capabilities())
	}

	ows, err := s.Overwrites(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Overwrites() error = %v", err)
	}
	if len(ows) != 1 {
		t.Fatalf("Overwrites() = %d entries, want 1", len(ows))
	}

	// Targets must exist: unknown roles, non-members and foreign roles are
	// all rejected.
	_, err = s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetRole, TargetID: "rol_missing",
	})
	wantErr(t, err, store.ErrNotFound, "UpsertOverwrite(unknown role)")
	outsider := mkUser(t, s, "cara")
	_, err = s.UpsertOverwrite(ctx, store.UpsertOverwriteParams{
		ChannelID: ch.ID, TargetType: permission.TargetMember, TargetID: outsider.ID,
	})
	wantErr(t, err, store.ErrNotFound, "UpsertOverwrite(non-member)")

	err = s.DeleteOverwrite(ctx, "chn_other", ow.ID)
	wantErr(t, err, store.ErrNotFound, "DeleteOverwrite(wrong channel)")
	if err := s.DeleteOverwrite(ctx, ch.ID, ow.ID); err != nil {
		t.Fatalf("DeleteOverwrite() error = %v", err)
	}
	ows, _ = s.Overwrites(ctx, ch.ID)
	if len(ows) != 0 {
		t.Errorf("Overwrites() after delete = %d, want 0", len(ows))
	}
}

func testInvites(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	cara := mkUser(t, s, "cara")
	srv := mkServer(t, s, alice.ID, "den")

	inv, err := s.CreateInvite(ctx, store.CreateInviteParams{ServerID: srv.ID, CreatedBy: alice.ID, MaxUses: 1})
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	if len(inv.Code) != 8 {
		t.Errorf("code = %q, want 8 characters", inv.Code)
	}

	joined, err := s.JoinByInvite(ctx, inv.Code, bob.ID)
	if err != nil {
		t.Fatalf("JoinByInvite() error = %v", err)
	}
	if joined.ID != srv.ID {
		t.Errorf("joined server = %q, want %q", joined.ID, srv.ID)
	}
	if _, err := s.Member(ctx, srv.ID, bob.ID); err != nil {
		t.Errorf("Member(joined) error = %v", err)
	}

	invites, err := s.Invites(ctx, srv.ID)
	if err != nil {
		t.Fatalf("Invites() error = %v", err)
	}
	if len(invites) != 1 || invites[0].Uses != 1 {
		t.Fatalf("Invites() = %+v, want one invite with 1 use", invites)
	}

	// Re-joining does not consume a use.
	if _, err := s.JoinByInvite(ctx, inv.Code, bob.ID); err != nil {
		t.Fatalf("JoinByInvite(member) error = %v", err)
	}
	invites, _ = s.Invites(ctx, srv.ID)
	if invites[0].Uses != 1 {
		t.Errorf("uses after member re-join = %d, want 1", invites[0].Uses)
	}

	// Exhausted for everyone else.
	_, err = s.JoinByInvite(ctx, inv.Code, cara.ID)
	wantErr(t, err, store.ErrInviteInvalid, "JoinByInvite(exhausted)")

	_, err = s.JoinByInvite(ctx, "NOSUCHCD", cara.ID)
	wantErr(t, err, store.ErrInviteInvalid, "JoinByInvite(unknown)")

	past := time.Now().Add(-time.Hour)
	expired, err := s.CreateInvite(ctx, store.CreateInviteParams{ServerID: srv.ID, CreatedBy: alice.ID, ExpiresAt: &past})
	if err != nil {
		t.Fatalf("CreateInvite(expired) error = %v", err)
	}
	_, err = s.JoinByInvite(ctx, expired.Code, cara.ID)
	wantErr(t, err, store.ErrInviteInvalid, "JoinByInvite(expired)")

	// Banned users see the same invalid-invite signal.
	open, _ := s.CreateInvite(ctx, store.CreateInviteParams{ServerID: srv.ID, CreatedBy: alice.ID})
	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: cara.ID, Action: model.ModerationBan,
	}); err != nil {
		t.Fatalf("Moderate(ban) error = %v", err)
	}
	_, err = s.JoinByInvite(ctx, open.Code, cara.ID)
	wantErr(t, err, store.ErrInviteInvalid, "JoinByInvite(banned)")

	err = s.DeleteInvite(ctx, "srv_other", open.Code)
	wantErr(t, err, store.ErrNotFound, "DeleteInvite(wrong server)")
	if err := s.DeleteInvite(ctx, srv.ID, open.Code); err != nil {
		t.Fatalf("DeleteInvite() error = %v", err)
	}
	_, err = s.JoinByInvite(ctx, open.Code, bob.ID)
	wantErr(t, err, store.ErrInviteInvalid, "JoinByInvite(deleted)")
}

func testModeration(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")
	mkMember(t, s, srv.ID, bob.ID)

	// The owner is untouchable.
	_, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: bob.ID, TargetUserID: alice.ID, Action: model.ModerationKick,
	})
	wantErr(t, err, store.ErrModerateOwner, "Moderate(owner)")

	kick, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationKick, Reason: "spam",
	})
	if err != nil {
		t.Fatalf("Moderate(kick) error = %v", err)
	}
	if kick.ActionType != model.ModerationKick {
		t.Errorf("ActionType = %q, want kick", kick.ActionType)
	}
	_, err = s.Member(ctx, srv.ID, bob.ID)
	wantErr(t, err, store.ErrNotFound, "Member(kicked)")

	// Kicking a non-member fails.
	_, err = s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationKick,
	})
	wantErr(t, err, store.ErrNotFound, "Moderate(kick non-member)")

	// Ban removes the membership and blocks re-entry.
	mkMember(t, s, srv.ID, bob.ID)
	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationBan, Reason: "worse spam",
	}); err != nil {
		t.Fatalf("Moderate(ban) error = %v", err)
	}
	if banned, _ := s.IsBanned(ctx, srv.ID, bob.ID); !banned {
		t.Error("IsBanned() = false after ban")
	}
	_, err = s.AddMember(ctx, srv.ID, bob.ID)
	wantErr(t, err, store.ErrBanned, "AddMember(banned)")

	bans, err := s.Bans(ctx, srv.ID)
	if err != nil {
		t.Fatalf("Bans() error = %v", err)
	}
	if len(bans) != 1 || bans[0].UserID != bob.ID {
		t.Fatalf("Bans() = %+v, want bob's ban", bans)
	}

	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationUnban,
	}); err != nil {
		t.Fatalf("Moderate(unban) error = %v", err)
	}
	if banned, _ := s.IsBanned(ctx, srv.ID, bob.ID); banned {
		t.Error("IsBanned() = true after unban")
	}
	_, err = s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationUnban,
	})
	wantErr(t, err, store.ErrNotFound, "Moderate(unban without ban)")

	// Timeouts need an expiry and lapse on their own.
	mkMember(t, s, srv.ID, bob.ID)
	_, err = s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationTimeout,
	})
	wantErr(t, err, store.ErrTimeoutExpiry, "Moderate(timeout without expiry)")

	future := time.Now().Add(10 * time.Minute)
	tm, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationTimeout, ExpiresAt: &future,
	})
	if err != nil {
		t.Fatalf("Moderate(timeout) error = %v", err)
	}
	if tm.ExpiresAt.IsZero() {
		t.Error("timeout action has zero expiresAt")
	}
	if muted, _ := s.ActiveTimeout(ctx, srv.ID, bob.ID); !muted {
		t.Error("ActiveTimeout() = false right after timeout")
	}

	past := time.Now().Add(-time.Second)
	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationTimeout, ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Moderate(timeout past) error = %v", err)
	}
	if muted, _ := s.ActiveTimeout(ctx, srv.ID, bob.ID); muted {
		t.Error("ActiveTimeout() = true for an expired timeout")
	}

	// Every action landed in the audit log, newest first.
	entries, err := s.AuditLog(ctx, srv.ID, 0)
	if err != nil {
		t.Fatalf("AuditLog() error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("AuditLog() = %d entries, want 5", len(entries))
	}
	if entries[0].ActionType != string(model.ModerationTimeout) {
		t.Errorf("entries[0].ActionType = %q, want the latest action first", entries[0].ActionType)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt.Time) {
			t.Errorf("audit log not descending at %d", i)
		}
	}
	if short, _ := s.AuditLog(ctx, srv.ID, 2); len(short) != 2 {
		t.Errorf("AuditLog(limit 2) = %d entries", len(short))
	}
}

func testSafety(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mkUser(t, s, "alice")
	bob := mkUser(t, s, "bob")
	srv := mkServer(t, s, alice.ID, "den")
	ch := mkChannel(t, s, srv.ID, "general")
	msg := mkMessage(t, s, ch.ID, alice.ID, "rude")

	_, err := s.CreateReport(ctx, store.CreateReportParams{
		ReporterID: bob.ID, TargetType: model.ReportTargetMessage, TargetID: "msg_missing", Reason: "abuse",
	})
	wantErr(t, err, store.ErrNotFound, "CreateReport(unknown target)")

	first, err := s.CreateReport(ctx, store.CreateReportParams{
		ReporterID: bob.ID, TargetType: model.ReportTargetMessage, TargetID: msg.ID, Reason: "abuse",
	})
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	if first.Status != model.ReportOpen {
		t.Errorf("status = %q, want open", first.Status)
	}
	second, err := s.CreateReport(ctx, store.CreateReportParams{
		ReporterID: bob.ID, TargetType: model.ReportTargetUser, TargetID: alice.ID, Reason: "harassment",
	})
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}

	reports, err := s.ReportsByUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ReportsByUser() error = %v", err)
	}
	if len(reports) != 2 || reports[0].ID != second.ID {
		t.Fatalf("ReportsByUser() = %+v, want newest first", reports)
	}
	if other, _ := s.ReportsByUser(ctx, alice.ID); len(other) != 0 {
		t.Errorf("ReportsByUser(alice) = %d entries, want 0", len(other))
	}

	// Appeals require an actual ban.
	_, err = s.CreateAppeal(ctx, srv.ID, bob.ID, "let me in")
	wantErr(t, err, store.ErrNotFound, "CreateAppeal(not banned)")

	mkMember(t, s, srv.ID, bob.ID)
	if _, err := s.Moderate(ctx, store.ModerationParams{
		ServerID: srv.ID, ActorID: alice.ID, TargetUserID: bob.ID, Action: model.ModerationBan,
	}); err != nil {
		t.Fatalf("Moderate(ban) error = %v", err)
	}

	appeal, err := s.CreateAppeal(ctx, srv.ID, bob.ID, "I have reformed")
	if err != nil {
		t.Fatalf("CreateAppeal() error = %v", err)
	}
	if appeal.Status != model.AppealPending {
		t.Errorf("status = %q, want pending", appeal.Status)
	}
	fetched, err := s.AppealByID(ctx, appeal.ID)
	if err != nil {
		t.Fatalf("AppealByID() error = %v", err)
	}
	if fetched.ServerID != srv.ID || fetched.UserID != bob.ID {
		t.Errorf("AppealByID() = %+v, want server %s user %s", fetched, srv.ID, bob.ID)
	}
	_, err = s.AppealByID(ctx, "apl_missing")
	wantErr(t, err, store.ErrNotFound, "AppealByID(unknown)")
	_, err = s.CreateAppeal(ctx, srv.ID, bob.ID, "again")
	wantErr(t, err, store.ErrOpenAppeal, "CreateAppeal(pending exists)")

	rejected, err := s.ResolveAppeal(ctx, appeal.ID, alice.ID, false)
	if err != nil {
		t.Fatalf("ResolveAppeal(reject) error = %v", err)
	}
	if rejected.Status != model.AppealRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}
	if banned, _ := s.IsBanned(ctx, srv.ID, bob.ID); !banned {
		t.Error("rejection lifted the ban")
	}
	_, err = s.ResolveAppeal(ctx, appeal.ID, alice.ID, true)
	wantErr(t, err, store.ErrAppealClosed, "ResolveAppeal(settled)")

	// A rejected appeal does not block a fresh one, and approval unbans.
	retry, err := s.CreateAppeal(ctx, srv.ID, bob.ID, "truly reformed")
	if err != nil {
		t.Fatalf("CreateAppeal(retry) error = %v", err)
	}
	approved, err := s.ResolveAppeal(ctx, retry.ID, alice.ID, true)
	if err != nil {
		t.Fatalf("ResolveAppeal(approve) error = %v", err)
	}
	if approved.Status != model.AppealApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
	if banned, _ := s.IsBanned(ctx, srv.ID, bob.ID); banned {
		t.Error("approval did not lift the ban")
	}
	if _, err := s.AddMember(ctx, srv.ID, bob.ID); err != nil {
		t.Errorf("AddMember(after approval) error = %v", err)
	}

	appeals, err := s.Appeals(ctx, srv.ID)
	if err != nil {
		t.Fatalf("Appeals() error = %v", err)
	}
	if len(appeals) != 2 || appeals[0].ID != retry.ID {
		t.Fatalf("Appeals() = %+v, want newest first", appeals)
	}
}
