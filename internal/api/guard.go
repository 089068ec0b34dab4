package api

import (
	"errors"
	"slices"

	"github.com/gofiber/fiber/v3"

	"github.com/aledlb8/Mango-sub000/internal/model"
	"github.com/aledlb8/Mango-sub000/internal/permission"
	"github.com/aledlb8/Mango-sub000/internal/store"
)

// Shared authorisation guards. They return *fiber.Error for expected
// denials, so handlers can pass the result straight to their error mapper:
// the app error handler renders fiber errors with their own status, and
// everything else as an opaque 500.
//
// Visibility policy: a server or channel the caller cannot see reports 404,
// a capability the caller lacks on a visible resource reports 403 naming
// the capability. Threads hide their existence from non-participants.

// currentUserID extracts the authenticated user set by auth.RequireAuth.
func currentUserID(c fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("userID").(string)
	return userID, ok && userID != ""
}

// isDenial reports whether a guard error is an expected HTTP denial rather
// than a store failure.
func isDenial(err error) bool {
	_, ok := errors.AsType[*fiber.Error](err)
	return ok
}

func missingPermission(capability permission.Capability) *fiber.Error {
	return fiber.NewError(fiber.StatusForbidden, "Missing permission: "+string(capability))
}

// serverCapability loads the caller's permission context for a server and
// checks one capability. Non-members get 404 so that server ids cannot be
// probed.
func serverCapability(c fiber.Ctx, st store.Store, serverID, userID string, capability permission.Capability) (*store.PermissionContext, error) {
	pc, err := serverMembership(c, st, serverID, userID)
	if err != nil {
		return nil, err
	}
	if !permission.Allows(pc.Query(userID), capability) {
		return nil, missingPermission(capability)
	}
	return pc, nil
}

// serverMembership checks only that the caller belongs to the server.
func serverMembership(c fiber.Ctx, st store.Store, serverID, userID string) (*store.PermissionContext, error) {
	pc, err := st.PermissionContext(c, serverID, userID, "")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Server not found")
		}
		return nil, err
	}
	if !pc.IsMember && pc.OwnerID != userID {
		return nil, fiber.NewError(fiber.StatusNotFound, "Server not found")
	}
	return pc, nil
}

// channelCapability loads a channel and checks one capability against the
// caller's effective permissions there, overwrites included. Callers who
// cannot read the channel get 404 regardless of the capability asked for.
func channelCapability(c fiber.Ctx, st store.Store, channelID, userID string, capability permission.Capability) (*model.Channel, error) {
	ch, err := st.ChannelByID(c, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Channel not found")
		}
		return nil, err
	}

	pc, err := st.PermissionContext(c, ch.ServerID, userID, channelID)
	if err != nil {
		return nil, err
	}
	if !pc.IsMember && pc.OwnerID != userID {
		return nil, fiber.NewError(fiber.StatusNotFound, "Channel not found")
	}

	q := pc.Query(userID)
	if !permission.Allows(q, permission.ReadMessages) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Channel not found")
	}
	if !permission.Allows(q, capability) {
		return nil, missingPermission(capability)
	}
	return ch, nil
}

// threadParticipant loads a direct thread the caller belongs to. Outsiders
// cannot tell the thread exists.
func threadParticipant(c fiber.Ctx, st store.Store, threadID, userID string) (*model.DirectThread, error) {
	thread, err := st.DirectThreadByID(c, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Thread not found")
		}
		return nil, err
	}
	if !slices.Contains(thread.ParticipantIDs, userID) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Thread not found")
	}
	return thread, nil
}

// messageConversation loads a message and verifies the caller can read the
// conversation it lives in. Invisible messages read as missing.
func messageConversation(c fiber.Ctx, st store.Store, messageID, userID string) (*model.Message, error) {
	msg, err := st.MessageByID(c, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Message not found")
		}
		return nil, err
	}

	if msg.DirectThreadID != "" {
		_, err = threadParticipant(c, st, msg.DirectThreadID, userID)
	} else {
		_, err = channelCapability(c, st, msg.ChannelID, userID, permission.ReadMessages)
	}
	if err != nil {
		if isDenial(err) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Message not found")
		}
		return nil, err
	}
	return msg, nil
}
