package rooms

import (
	mathrand "math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/Seednode/setbox/internal/cards"
	"github.com/Seednode/setbox/internal/protocol"
)

func newTestRegistry(opts Options) *Registry {
	if opts.Rand == nil {
		var seed uint64
		opts.Rand = func() *mathrand.Rand {
			seed++
			return cards.NewRand(seed)
		}
	}
	return NewRegistry(opts)
}

func newTestClient() *Client {
	return NewClient(1024)
}

// drain returns every message queued for c without waiting.
func drain(c *Client) []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case m, ok := <-c.Feed():
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func only[T protocol.Message](msgs []protocol.Message) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// waitFor reads c's feed until a message of type T arrives.
func waitFor[T protocol.Message](t *testing.T, c *Client, timeout time.Duration) (T, []protocol.Message) {
	t.Helper()

	var seen []protocol.Message
	deadline := time.After(timeout)
	for {
		select {
		case m, ok := <-c.Feed():
			if !ok {
				var zero T
				t.Fatalf("feed closed before %T arrived", zero)
			}
			seen = append(seen, m)
			if v, ok := m.(T); ok {
				return v, seen
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

// rig replaces a started room's cards.
func rig(s *Session, deck, table []cards.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deck = slices.Clone(deck)
	s.table = slices.Clone(table)
	s.tableVersion++
}

func without(deck []cards.Card, drop ...cards.Card) []cards.Card {
	return slices.DeleteFunc(slices.Clone(deck), func(c cards.Card) bool {
		return slices.Contains(drop, c)
	})
}

var (
	cardA = cards.Card{Shape: cards.Diamond, Color: cards.Red, Number: 1, Shading: cards.Solid}
	cardB = cards.Card{Shape: cards.Oval, Color: cards.Green, Number: 2, Shading: cards.Striped}
	cardC = cards.Card{Shape: cards.Squiggle, Color: cards.Purple, Number: 3, Shading: cards.Open}

	// Shares red with cardA and breaks the color rule with cardB and cardC below.
	cardRedOval = cards.Card{Shape: cards.Oval, Color: cards.Red, Number: 2, Shading: cards.Striped}
)

func standardSettings() Settings {
	return Settings{Mode: protocol.ModeAuthoritative, Variant: cards.Standard}
}

func trustedSettings() Settings {
	return Settings{Mode: protocol.ModeTrusted, Variant: cards.Standard}
}

// startedRoom creates a room for Alice, adds Bob, and starts the game.
func startedRoom(t *testing.T, r *Registry, settings Settings) (*Session, *Client, *Client) {
	t.Helper()

	alice, bob := newTestClient(), newTestClient()

	s, err := r.Create(alice, "Alice", settings)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, _, err := r.Join(s.ID(), bob, "Bob"); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if err := s.Start("Alice"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	drain(alice)
	drain(bob)

	return s, alice, bob
}
