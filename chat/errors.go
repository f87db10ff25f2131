package chat

import "github.com/driftlabs/chatwire/apperror"

// Domain errors surfaced synchronously to callers. The storage layer
// returns the NotFound sentinels directly so the engine and the API can
// branch on them without inspecting driver errors.
var (
	ErrConversationNotFound = apperror.NotFound("conversation not found")
	ErrMessageNotFound      = apperror.NotFound("message not found")
	ErrUserNotFound         = apperror.NotFound("user not found")
	ErrReactionNotFound     = apperror.NotFound("reaction not found")
	ErrNotParticipant       = apperror.Forbidden("user is not part of this conversation")
	ErrNotSender            = apperror.Forbidden("only the sender can modify this message")
	ErrMessageDeleted       = apperror.Conflict("message was deleted for everyone")
	ErrSelfContact          = apperror.InvalidArg("cannot save yourself as a contact")
	ErrEditWindowClosed     = apperror.Expired("edit window has closed")
)
