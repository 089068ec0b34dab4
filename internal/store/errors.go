package store

import "errors"

// Sentinel errors shared by every store implementation. Handlers translate
// these to HTTP statuses; anything else coming out of a store is treated as
// an internal failure.
var (
	ErrNotFound      = errors.New("not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")

	ErrAlreadyFriends = errors.New("users are already friends")
	ErrRequestPending = errors.New("a friend request between these users is already pending")

	ErrBanned             = errors.New("user is banned from this server")
	ErrModerateOwner      = errors.New("the server owner cannot be moderated")
	ErrTimeoutExpiry      = errors.New("timeout requires an expiry")
	ErrInviteInvalid      = errors.New("invite is invalid")
	ErrImmutableRole      = errors.New("the default role cannot be renamed or deleted")
	ErrThreadParticipants = errors.New("a direct thread needs at least two existing participants")

	ErrNotAuthor     = errors.New("only the author can modify a message")
	ErrReplyNotFound = errors.New("reply target does not exist in this conversation")
	ErrMarkerMessage = errors.New("lastReadMessageId does not belong to this conversation")

	ErrOpenAppeal   = errors.New("an appeal for this server is already pending")
	ErrAppealClosed = errors.New("appeal has already been resolved")
)
