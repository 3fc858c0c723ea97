package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/Seednode/setbox/internal/cards"
)

// Mode selects who is trusted with a room's deck and scores.
type Mode string

const (
	// ModeAuthoritative validates every set claim on the server.
	ModeAuthoritative Mode = "authoritative"
	// ModeTrusted accepts state and score updates from players as sent.
	ModeTrusted Mode = "trusted"
)

// Permits reports whether requests of kind k may be sent to a room in mode m.
// The trusted and authoritative operations never mix within one room.
func (m Mode) Permits(k Kind) bool {
	switch k {
	case KindReplaceState, KindRecordScore:
		return m == ModeTrusted
	case KindClaimSet, KindDealMore:
		return m == ModeAuthoritative
	default:
		return true
	}
}

const (
	KindRoomCreated  Kind = "room_created"
	KindPlayerJoined Kind = "player_joined"
	KindPlayerLeft   Kind = "player_left"
	KindGameState    Kind = "game_state"
	KindScoreboard   Kind = "scoreboard"
	KindSetResult    Kind = "set_result"
	KindHint         Kind = "hint"
	KindTimerUpdate  Kind = "timer_update"
	KindGameOver     Kind = "game_over"
	KindError        Kind = "error"
)

// Message is implemented by every outbound message type.
type Message interface {
	MessageKind() Kind
}

type PlayerScore struct {
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

type RoomCreated struct {
	RoomID  string `json:"roomId"`
	Mode    Mode   `json:"mode"`
	Variant string `json:"variant"`
}

type PlayerJoined struct {
	RoomID      string        `json:"roomId"`
	DisplayName string        `json:"displayName"`
	Players     []PlayerScore `json:"players"`
}

type PlayerLeft struct {
	RoomID      string        `json:"roomId"`
	DisplayName string        `json:"displayName"`
	Players     []PlayerScore `json:"players"`
}

// GameState carries the visible table. Deck is only sent for trusted rooms,
// where the players own it.
type GameState struct {
	RoomID        string       `json:"roomId"`
	Phase         string       `json:"phase"`
	Deck          []cards.Card `json:"deck,omitempty"`
	DeckRemaining int          `json:"deckRemaining"`
	Table         []cards.Card `json:"table"`
	TableVersion  uint64       `json:"tableVersion"`
	Started       bool         `json:"started"`
}

type Scoreboard struct {
	RoomID  string        `json:"roomId"`
	Players []PlayerScore `json:"players"`
}

type SetResult struct {
	RoomID   string       `json:"roomId"`
	Accepted bool         `json:"accepted"`
	Reason   string       `json:"reason,omitempty"`
	Kind     string       `json:"kind,omitempty"`
	Claimant string       `json:"claimant,omitempty"`
	Cards    []cards.Card `json:"cards,omitempty"`
}

// Hint points at a set on the table. CardIndices is empty when there is none.
type Hint struct {
	RoomID      string `json:"roomId"`
	CardIndices []int  `json:"cardIndices"`
}

// TimerUpdate reports the whole seconds left on a room's countdown.
type TimerUpdate struct {
	RoomID    string `json:"roomId"`
	Remaining int    `json:"remaining"`
}

type GameOver struct {
	RoomID  string        `json:"roomId"`
	Winner  string        `json:"winner"`
	Players []PlayerScore `json:"players"`
	Reason  string        `json:"reason"`
}

type Error struct {
	RoomID  string `json:"roomId,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (RoomCreated) MessageKind() Kind  { return KindRoomCreated }
func (PlayerJoined) MessageKind() Kind { return KindPlayerJoined }
func (PlayerLeft) MessageKind() Kind   { return KindPlayerLeft }
func (GameState) MessageKind() Kind    { return KindGameState }
func (Scoreboard) MessageKind() Kind   { return KindScoreboard }
func (SetResult) MessageKind() Kind    { return KindSetResult }
func (Hint) MessageKind() Kind         { return KindHint }
func (TimerUpdate) MessageKind() Kind  { return KindTimerUpdate }
func (GameOver) MessageKind() Kind     { return KindGameOver }
func (Error) MessageKind() Kind        { return KindError }

// Encode renders m as a JSON object with its kind in the "type" field.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	kind, _ := json.Marshal(m.MessageKind())
	buf.Write(kind)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}

	return buf.Bytes(), nil
}
