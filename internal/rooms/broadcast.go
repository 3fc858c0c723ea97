package rooms

import (
	"github.com/Seednode/setbox/internal/cards"
	"github.com/Seednode/setbox/internal/protocol"
)

// publish sends m to every player in the room except exclude. Callers hold
// the session lock, so each subscriber sees a room's messages in order.
func (s *Session) publish(m protocol.Message, exclude string) {
	for _, p := range s.players {
		if p.name == exclude {
			continue
		}
		if !p.client.Deliver(m) {
			s.registry.logf("ROOMS: Dropped %s for %q in %s", m.MessageKind(), p.name, s.id)
		}
	}
}

// publishTo sends m to a single player.
func (s *Session) publishTo(name string, m protocol.Message) {
	if p := s.findLocked(name); p != nil {
		p.client.Deliver(m)
	}
}

func (s *Session) gameStateLocked() protocol.GameState {
	msg := protocol.GameState{
		RoomID:        s.id,
		Phase:         s.phase.String(),
		DeckRemaining: len(s.deck),
		Table:         append([]cards.Card{}, s.table...),
		TableVersion:  s.tableVersion,
		Started:       s.started,
	}

	// Players own the deck in trusted rooms; otherwise it stays hidden.
	if s.settings.Mode == protocol.ModeTrusted {
		msg.Deck = append([]cards.Card{}, s.deck...)
	}

	return msg
}

func (s *Session) scoreboardLocked() protocol.Scoreboard {
	return protocol.Scoreboard{
		RoomID:  s.id,
		Players: s.scoresLocked(),
	}
}

func (s *Session) timerUpdateLocked() protocol.TimerUpdate {
	return protocol.TimerUpdate{
		RoomID:    s.id,
		Remaining: wholeSeconds(s.remaining),
	}
}
