package rooms

import (
	"errors"

	"github.com/Seednode/setbox/internal/protocol"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrDuplicateIdentity = errors.New("that display name is already taken in this room")
	ErrAlreadyMember     = errors.New("this connection has already joined the room")
	ErrNotMember         = errors.New("not a member of this room")
	ErrNotHost           = errors.New("only the host may do that")
	ErrWrongMode         = errors.New("not available in this room's mode")
	ErrNotActive         = errors.New("no game in progress")
	ErrAlreadyStarted    = errors.New("game already started")
	ErrInvalidName       = errors.New("invalid display name")
)

// Reasons a set claim is turned down.
const (
	ReasonNotASet           = "not_a_set"
	ReasonInvalidIndices    = "invalid_indices"
	ReasonStaleIndices      = "stale_indices"
	ReasonDeckTableMismatch = "deck_table_mismatch"
)

// ClaimError rejects a single set claim. The table is left untouched.
type ClaimError struct {
	Reason string
}

func (e *ClaimError) Error() string {
	return "set claim rejected: " + e.Reason
}

// ErrorKind names err for the client. Claim rejections are named in their
// set_result, everything else in an error message.
func ErrorKind(err error) string {
	var ce *ClaimError
	var de *protocol.DecodeError

	switch {
	case errors.As(err, &ce):
		if ce.Reason == ReasonStaleIndices || ce.Reason == ReasonDeckTableMismatch {
			return "stale_reference"
		}
		return "invalid_set_claim"
	case errors.As(err, &de), errors.Is(err, ErrInvalidName):
		return "invalid_request"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrDuplicateIdentity), errors.Is(err, ErrAlreadyMember):
		return "duplicate_identity"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrWrongMode):
		return "wrong_mode"
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrAlreadyStarted):
		return "wrong_phase"
	default:
		return "internal"
	}
}
