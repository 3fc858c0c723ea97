// Package protocol defines the messages exchanged with clients. Inbound
// messages decode into a closed set of request types and are validated
// before they reach a room.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Seednode/setbox/internal/cards"
)

// Kind tags every message on the wire.
type Kind string

const (
	KindCreateRoom   Kind = "create_room"
	KindJoinRoom     Kind = "join_room"
	KindLeaveRoom    Kind = "leave_room"
	KindStartGame    Kind = "start_game"
	KindReplaceState Kind = "replace_state"
	KindClaimSet     Kind = "claim_set"
	KindRecordScore  Kind = "record_score"
	KindRequestHint  Kind = "request_hint"
	KindDealMore     Kind = "deal_more"
	KindEndRoom      Kind = "end_room"
)

const (
	MaxNameLength = 32

	// MaxCountdownSeconds caps a room's countdown at one day.
	MaxCountdownSeconds = 24 * 60 * 60
)

// Request is implemented only by the inbound message types in this package.
type Request interface {
	Kind() Kind
	validate() error
}

// RoomRequest is a Request addressed to an existing room.
type RoomRequest interface {
	Request
	Room() string
}

type CreateRoom struct {
	DisplayName      string `json:"displayName"`
	Mode             Mode   `json:"mode,omitempty"`
	Variant          string `json:"variant,omitempty"`
	CountdownSeconds int    `json:"countdownSeconds,omitempty"`
}

type JoinRoom struct {
	DisplayName string `json:"displayName"`
	RoomID      string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type StartGame struct {
	RoomID string `json:"roomId"`
}

// ReplaceState overwrites a trusted-mode room's deck and table.
type ReplaceState struct {
	RoomID  string       `json:"roomId"`
	Deck    []cards.Card `json:"deck"`
	Table   []cards.Card `json:"table"`
	Started bool         `json:"started"`
}

// ClaimSet submits three table positions. TableVersion and Cards are
// optional and let the room detect claims made against an outdated table.
type ClaimSet struct {
	RoomID       string       `json:"roomId"`
	CardIndices  []int        `json:"cardIndices"`
	TableVersion *uint64      `json:"tableVersion,omitempty"`
	Cards        []cards.Card `json:"cards,omitempty"`
}

type RecordScore struct {
	RoomID         string `json:"roomId"`
	PlayerIdentity string `json:"playerIdentity"`
}

type RequestHint struct {
	RoomID string `json:"roomId"`
}

type DealMore struct {
	RoomID string `json:"roomId"`
}

type EndRoom struct {
	RoomID string `json:"roomId"`
}

func (CreateRoom) Kind() Kind   { return KindCreateRoom }
func (JoinRoom) Kind() Kind     { return KindJoinRoom }
func (LeaveRoom) Kind() Kind    { return KindLeaveRoom }
func (StartGame) Kind() Kind    { return KindStartGame }
func (ReplaceState) Kind() Kind { return KindReplaceState }
func (ClaimSet) Kind() Kind     { return KindClaimSet }
func (RecordScore) Kind() Kind  { return KindRecordScore }
func (RequestHint) Kind() Kind  { return KindRequestHint }
func (DealMore) Kind() Kind     { return KindDealMore }
func (EndRoom) Kind() Kind      { return KindEndRoom }

func (m JoinRoom) Room() string     { return m.RoomID }
func (m LeaveRoom) Room() string    { return m.RoomID }
func (m StartGame) Room() string    { return m.RoomID }
func (m ReplaceState) Room() string { return m.RoomID }
func (m ClaimSet) Room() string     { return m.RoomID }
func (m RecordScore) Room() string  { return m.RoomID }
func (m RequestHint) Room() string  { return m.RoomID }
func (m DealMore) Room() string     { return m.RoomID }
func (m EndRoom) Room() string      { return m.RoomID }

// DecodeError is returned for malformed or invalid inbound messages.
type DecodeError struct {
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return "invalid message: " + e.Reason
	}
	return fmt.Sprintf("invalid %s message: %s", e.Kind, e.Reason)
}

func invalid(kind Kind, format string, args ...any) error {
	return &DecodeError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Decode parses a client message of the form {"type": kind, ...fields}.
func Decode(data []byte) (Request, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, invalid("", "%v", err)
	}

	if head.Type == "" {
		return nil, invalid("", "missing type")
	}

	decode, ok := decoders[head.Type]
	if !ok {
		return nil, invalid("", "unknown type %q", head.Type)
	}

	req, err := decode(data)
	if err != nil {
		return nil, invalid(head.Type, "%v", err)
	}

	if err := req.validate(); err != nil {
		return nil, err
	}

	return req, nil
}

var decoders = map[Kind]func([]byte) (Request, error){
	KindCreateRoom:   decodeAs[CreateRoom],
	KindJoinRoom:     decodeAs[JoinRoom],
	KindLeaveRoom:    decodeAs[LeaveRoom],
	KindStartGame:    decodeAs[StartGame],
	KindReplaceState: decodeAs[ReplaceState],
	KindClaimSet:     decodeAs[ClaimSet],
	KindRecordScore:  decodeAs[RecordScore],
	KindRequestHint:  decodeAs[RequestHint],
	KindDealMore:     decodeAs[DealMore],
	KindEndRoom:      decodeAs[EndRoom],
}

func decodeAs[T Request](data []byte) (Request, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// CleanName trims a display name and checks it is usable.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", fmt.Errorf("display name must be provided")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", fmt.Errorf("display name longer than %d characters", MaxNameLength)
	}
	return name, nil
}

func requireRoom(kind Kind, roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return invalid(kind, "missing roomId")
	}
	return nil
}

func (m CreateRoom) validate() error {
	if _, err := CleanName(m.DisplayName); err != nil {
		return invalid(m.Kind(), "%v", err)
	}
	switch m.Mode {
	case "", ModeAuthoritative, ModeTrusted:
	default:
		return invalid(m.Kind(), "unknown mode %q", m.Mode)
	}
	if _, err := cards.ParseVariant(m.Variant); err != nil {
		return invalid(m.Kind(), "%v", err)
	}
	if m.CountdownSeconds < 0 {
		return invalid(m.Kind(), "negative countdown")
	}
	if m.CountdownSeconds > MaxCountdownSeconds {
		return invalid(m.Kind(), "countdown longer than %d seconds", MaxCountdownSeconds)
	}
	return nil
}

func (m JoinRoom) validate() error {
	if _, err := CleanName(m.DisplayName); err != nil {
		return invalid(m.Kind(), "%v", err)
	}
	return requireRoom(m.Kind(), m.RoomID)
}

func (m LeaveRoom) validate() error   { return requireRoom(m.Kind(), m.RoomID) }
func (m StartGame) validate() error   { return requireRoom(m.Kind(), m.RoomID) }
func (m RequestHint) validate() error { return requireRoom(m.Kind(), m.RoomID) }
func (m DealMore) validate() error    { return requireRoom(m.Kind(), m.RoomID) }
func (m EndRoom) validate() error     { return requireRoom(m.Kind(), m.RoomID) }

func (m ReplaceState) validate() error {
	return requireRoom(m.Kind(), m.RoomID)
}

func (m ClaimSet) validate() error {
	if err := requireRoom(m.Kind(), m.RoomID); err != nil {
		return err
	}
	if m.Cards != nil && len(m.Cards) != len(m.CardIndices) {
		return invalid(m.Kind(), "cards and cardIndices differ in length")
	}
	return nil
}

func (m RecordScore) validate() error {
	if err := requireRoom(m.Kind(), m.RoomID); err != nil {
		return err
	}
	if strings.TrimSpace(m.PlayerIdentity) == "" {
		return invalid(m.Kind(), "missing playerIdentity")
	}
	return nil
}
