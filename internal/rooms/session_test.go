package rooms

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/Seednode/setbox/internal/cards"
	"github.com/Seednode/setbox/internal/protocol"
)

func TestStart(t *testing.T) {
	r := newTestRegistry(Options{})
	alice, bob := newTestClient(), newTestClient()

	s, err := r.Create(alice, "Alice", standardSettings())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Join(s.ID(), bob, "Bob"); err != nil {
		t.Fatal(err)
	}

	if err := s.Start("Bob"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if err := s.Start("Mallory"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if err := s.Start("Alice"); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := s.Start("Alice"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Phase != PhaseActive || !snap.Started {
		t.Fatalf("expected active room, got %s", snap.Phase)
	}
	if len(snap.Table) < 12 {
		t.Errorf("expected at least 12 cards dealt, got %d", len(snap.Table))
	}
	if snap.DeckRemaining+len(snap.Table) != 81 {
		t.Errorf("cards lost while dealing: deck %d table %d", snap.DeckRemaining, len(snap.Table))
	}
	if !cards.HasAnySet(snap.Table) {
		t.Error("dealt a table without a set")
	}

	states := only[protocol.GameState](drain(bob))
	if len(states) != 1 || len(states[0].Table) != len(snap.Table) {
		t.Fatalf("expected one game_state with the table, got %+v", states)
	}
	if states[0].Deck != nil {
		t.Error("authoritative room leaked its deck")
	}
}

func TestLateJoinerGetsState(t *testing.T) {
	r := newTestRegistry(Options{})
	s, _, _ := startedRoom(t, r, standardSettings())

	carol := newTestClient()
	_, snap, err := r.Join(s.ID(), carol, "Carol")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Phase != PhaseActive || len(snap.Table) == 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	states := only[protocol.GameState](drain(carol))
	if len(states) != 1 || !slices.Equal(states[0].Table, snap.Table) {
		t.Errorf("late joiner got %+v", states)
	}
}

func TestValidClaim(t *testing.T) {
	r := newTestRegistry(Options{})
	s, alice, bob := startedRoom(t, r, standardSettings())

	deck := without(cards.BuildDeck(cards.Standard, cards.NewRand(9)), cardA, cardB, cardC)
	rig(s, deck, []cards.Card{cardA, cardB, cardC})

	if err := s.ClaimSet("Bob", Claim{Indices: []int{0, 1, 2}}); err != nil {
		t.Fatalf("ClaimSet returned error: %v", err)
	}

	snap := s.Snapshot()
	if snap.Players[1].Score != 1 || snap.Players[0].Score != 0 {
		t.Errorf("unexpected scores %+v", snap.Players)
	}
	if len(snap.Table) < 12 {
		t.Errorf("table not replenished: %d cards", len(snap.Table))
	}
	if !slices.Equal(snap.Table[:12], deck[:12]) {
		t.Error("table not refilled from the front of the deck")
	}
	if got := snap.DeckRemaining + len(snap.Table) + 3*snap.Claims; got != 81 {
		t.Errorf("card count %d, want 81", got)
	}

	for _, c := range []*Client{alice, bob} {
		results := only[protocol.SetResult](drain(c))
		if len(results) != 1 || !results[0].Accepted || results[0].Claimant != "Bob" {
			t.Errorf("expected accepted set_result, got %+v", results)
		}
	}
}

func TestInvalidClaim(t *testing.T) {
	r := newTestRegistry(Options{})
	s, alice, bob := startedRoom(t, r, standardSettings())

	// Colors red, red, purple: exactly two match.
	table := []cards.Card{cardA, cardRedOval, cardC}
	rig(s, nil, table)
	before := s.Snapshot()

	err := s.ClaimSet("Bob", Claim{Indices: []int{0, 1, 2}})

	var ce *ClaimError
	if !errors.As(err, &ce) || ce.Reason != ReasonNotASet {
		t.Fatalf("expected not_a_set, got %v", err)
	}

	after := s.Snapshot()
	if !slices.Equal(after.Table, before.Table) || after.TableVersion != before.TableVersion {
		t.Error("rejected claim changed the table")
	}
	if after.Players[1].Score != 0 || after.Phase != PhaseActive {
		t.Errorf("rejected claim changed state: %+v", after)
	}
	if n := len(drain(alice)) + len(drain(bob)); n != 0 {
		t.Errorf("rejected claim broadcast %d messages", n)
	}
}

func TestClaimRejections(t *testing.T) {
	r := newTestRegistry(Options{})
	s, _, _ := startedRoom(t, r, standardSettings())

	deck := without(cards.BuildDeck(cards.Standard, cards.NewRand(5)), cardA, cardB, cardC)
	rig(s, deck, []cards.Card{cardA, cardB, cardC, deck[0]})

	version := s.Snapshot().TableVersion
	stale := version - 1

	tests := []struct {
		name   string
		claim  Claim
		reason string
	}{
		{"past the end", Claim{Indices: []int{0, 1, 7}}, ReasonInvalidIndices},
		{"two indices", Claim{Indices: []int{0, 1}}, ReasonInvalidIndices},
		{"four indices", Claim{Indices: []int{0, 1, 2, 3}}, ReasonInvalidIndices},
		{"repeated index", Claim{Indices: []int{0, 1, 1}}, ReasonInvalidIndices},
		{"out of range", Claim{Indices: []int{0, 1, 9}}, ReasonInvalidIndices},
		{"negative", Claim{Indices: []int{-1, 1, 2}}, ReasonInvalidIndices},
		{"old table version", Claim{Indices: []int{0, 1, 2}, TableVersion: &stale}, ReasonStaleIndices},
		{"cards moved", Claim{Indices: []int{0, 1, 2}, Cards: []cards.Card{cardB, cardA, cardC}}, ReasonDeckTableMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ClaimSet("Alice", tt.claim)

			var ce *ClaimError
			if !errors.As(err, &ce) || ce.Reason != tt.reason {
				t.Fatalf("expected %s, got %v", tt.reason, err)
			}
		})
	}

	if s.Snapshot().TableVersion != version {
		t.Fatal("rejections changed the table")
	}

	err := s.ClaimSet("Alice", Claim{
		Indices:      []int{2, 0, 1},
		TableVersion: &version,
		Cards:        []cards.Card{cardC, cardA, cardB},
	})
	if err != nil {
		t.Fatalf("matching claim rejected: %v", err)
	}
}

func TestCardConservation(t *testing.T) {
	for _, variant := range []cards.Variant{cards.Standard, cards.Beginner} {
		t.Run(variant.Name, func(t *testing.T) {
			r := newTestRegistry(Options{})
			s, alice, _ := startedRoom(t, r, Settings{Mode: protocol.ModeAuthoritative, Variant: variant})

			check := func(snap Snapshot) {
				t.Helper()
				if got := snap.DeckRemaining + len(snap.Table) + 3*snap.Claims; got != variant.Size() {
					t.Fatalf("card count %d, want %d", got, variant.Size())
				}
			}

			for round := 0; s.Phase() == PhaseActive; round++ {
				snap := s.Snapshot()
				check(snap)

				idx, ok := cards.FindFirstSet(snap.Table)
				if !ok {
					t.Fatalf("active room with no set on the table and %d cards in the deck", snap.DeckRemaining)
				}

				who := []string{"Alice", "Bob"}[round%2]
				if err := s.ClaimSet(who, Claim{Indices: idx[:], TableVersion: &snap.TableVersion}); err != nil {
					t.Fatalf("round %d: %v", round, err)
				}
			}

			final := s.Snapshot()
			check(final)
			if final.DeckRemaining != 0 || cards.HasAnySet(final.Table) {
				t.Errorf("ended with deck %d and a set on the table", final.DeckRemaining)
			}

			over := only[protocol.GameOver](drain(alice))
			if len(over) != 1 {
				t.Fatalf("expected exactly one game_over, got %d", len(over))
			}
			if over[0].Reason != EndedExhausted {
				t.Errorf("expected exhausted, got %s", over[0].Reason)
			}
			if _, err := r.Get(s.ID()); !errors.Is(err, ErrRoomNotFound) {
				t.Errorf("ended room still registered: %v", err)
			}
		})
	}
}

func TestTerminalWinner(t *testing.T) {
	r := newTestRegistry(Options{})
	s, alice, _ := startedRoom(t, r, standardSettings())

	rig(s, nil, []cards.Card{cardA, cardB, cardC})

	if err := s.ClaimSet("Bob", Claim{Indices: []int{0, 1, 2}}); err != nil {
		t.Fatal(err)
	}

	if s.Phase() != PhaseEnded {
		t.Fatalf("expected ended, got %s", s.Phase())
	}

	over := only[protocol.GameOver](drain(alice))
	if len(over) != 1 || over[0].Winner != "Bob" || over[0].Reason != EndedExhausted {
		t.Fatalf("unexpected game_over %+v", over)
	}

	if err := s.End("Alice"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound after end, got %v", err)
	}
	if s.terminate(EndedTimer) {
		t.Error("ended room ended twice")
	}
	if n := len(only[protocol.GameOver](drain(alice))); n != 0 {
		t.Errorf("extra game_over messages: %d", n)
	}
}

func TestLeader(t *testing.T) {
	tests := []struct {
		name    string
		players []*player
		want    string
	}{
		{"nobody", nil, ""},
		{"highest wins", []*player{{name: "Alice", score: 1}, {name: "Bob", score: 3}, {name: "Carol", score: 2}}, "Bob"},
		{"tie goes to first joined", []*player{{name: "Alice", score: 2}, {name: "Bob", score: 2}, {name: "Carol", score: 1}}, "Alice"},
		{"all zero", []*player{{name: "Alice"}, {name: "Bob"}}, "Alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := leader(tt.players); got != tt.want {
				t.Errorf("leader = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeMixingRejected(t *testing.T) {
	r := newTestRegistry(Options{})
	auth, _, _ := startedRoom(t, r, standardSettings())
	trusted, _, _ := startedRoom(t, r, trustedSettings())

	checks := []struct {
		name string
		err  error
	}{
		{"replace_state on authoritative", auth.ReplaceState("Alice", nil, nil, true)},
		{"record_score on authoritative", auth.RecordScore("Alice", "Bob")},
		{"claim_set on trusted", trusted.ClaimSet("Alice", Claim{Indices: []int{0, 1, 2}})},
		{"deal_more on trusted", trusted.DealMore("Alice")},
	}

	for _, c := range checks {
		if !errors.Is(c.err, ErrWrongMode) {
			t.Errorf("%s: expected ErrWrongMode, got %v", c.name, c.err)
		}
	}
}

func TestTrustedMode(t *testing.T) {
	r := newTestRegistry(Options{})
	alice, bob := newTestClient(), newTestClient()

	s, err := r.Create(alice, "Alice", trustedSettings())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Join(s.ID(), bob, "Bob"); err != nil {
		t.Fatal(err)
	}

	if err := s.ReplaceState("Alice", nil, []cards.Card{cardA}, true); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive in lobby, got %v", err)
	}
	if err := s.Start("Alice"); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); len(snap.Table) != 0 || snap.DeckRemaining != 0 {
		t.Fatalf("trusted room dealt its own cards: %+v", snap)
	}
	drain(alice)
	drain(bob)

	deck := cards.BuildDeck(cards.Standard, cards.NewRand(2))
	if err := s.ReplaceState("Alice", deck[12:], deck[:12], true); err != nil {
		t.Fatalf("ReplaceState returned error: %v", err)
	}

	if n := len(only[protocol.GameState](drain(alice))); n != 0 {
		t.Errorf("sender received its own state back %d times", n)
	}
	states := only[protocol.GameState](drain(bob))
	if len(states) != 1 || len(states[0].Deck) != 69 || !slices.Equal(states[0].Table, deck[:12]) {
		t.Fatalf("unexpected state for Bob: %+v", states)
	}

	if err := s.RecordScore("Alice", "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordScore("Alice", "Nobody"); err != nil {
		t.Fatalf("unknown target should not fail: %v", err)
	}
	if err := s.RecordScore("Alice", "  Bob "); err != nil {
		t.Fatal(err)
	}
	boards := only[protocol.Scoreboard](drain(bob))
	if len(boards) != 3 || boards[1].Players[1].Score != 1 || boards[2].Players[1].Score != 2 {
		t.Fatalf("unexpected scoreboards %+v", boards)
	}

	// An empty deck with no set visible ends the game.
	if err := s.ReplaceState("Bob", nil, []cards.Card{cardA, cardRedOval}, true); err != nil {
		t.Fatal(err)
	}
	over := only[protocol.GameOver](drain(alice))
	if len(over) != 1 || over[0].Winner != "Bob" {
		t.Errorf("unexpected game_over %+v", over)
	}
}

func TestTrustedEmptyStateDoesNotEnd(t *testing.T) {
	r := newTestRegistry(Options{})
	s, _, _ := startedRoom(t, r, trustedSettings())

	if err := s.ReplaceState("Alice", nil, nil, true); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseActive {
		t.Errorf("room ended before any cards were sent")
	}
}

func TestHint(t *testing.T) {
	r := newTestRegistry(Options{})
	s, alice, bob := startedRoom(t, r, standardSettings())

	rig(s, []cards.Card{cardC}, []cards.Card{cardRedOval, cardA, cardB, cardC})

	idx, ok, err := s.Hint("Bob")
	if err != nil || !ok {
		t.Fatalf("Hint = %v, %v, %v", idx, ok, err)
	}
	if idx != [3]int{1, 2, 3} {
		t.Errorf("expected [1 2 3], got %v", idx)
	}

	again, _, _ := s.Hint("Bob")
	if again != idx {
		t.Errorf("hint changed between calls: %v then %v", idx, again)
	}

	hints := only[protocol.Hint](drain(bob))
	if len(hints) != 2 || !slices.Equal(hints[0].CardIndices, []int{1, 2, 3}) {
		t.Errorf("unexpected hints %+v", hints)
	}
	if n := len(drain(alice)); n != 0 {
		t.Errorf("hint leaked to other players: %d messages", n)
	}

	rig(s, []cards.Card{cardC}, []cards.Card{cardA, cardRedOval})
	if _, ok, _ := s.Hint("Bob"); ok {
		t.Error("hint found a set on a table without one")
	}
}

func TestDealMore(t *testing.T) {
	r := newTestRegistry(Options{})
	s, _, bob := startedRoom(t, r, standardSettings())

	before := s.Snapshot()
	if err := s.DealMore("Bob"); err != nil {
		t.Fatal(err)
	}
	after := s.Snapshot()

	if len(after.Table) != len(before.Table)+3 || after.DeckRemaining != before.DeckRemaining-3 {
		t.Errorf("expected three more cards, table %d -> %d", len(before.Table), len(after.Table))
	}
	if after.TableVersion == before.TableVersion {
		t.Error("table version not bumped")
	}
	if len(only[protocol.GameState](drain(bob))) != 1 {
		t.Error("expected a game_state broadcast")
	}
}

func TestHostHandover(t *testing.T) {
	r := newTestRegistry(Options{})
	alice, bob := newTestClient(), newTestClient()

	s, err := r.Create(alice, "Alice", standardSettings())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Join(s.ID(), bob, "Bob"); err != nil {
		t.Fatal(err)
	}

	if err := s.Leave("Alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start("Bob"); err != nil {
		t.Errorf("next player should host after Alice left: %v", err)
	}
}

func TestConcurrentClaims(t *testing.T) {
	r := newTestRegistry(Options{})
	s, _, _ := startedRoom(t, r, standardSettings())

	var wg sync.WaitGroup
	for _, name := range []string{"Alice", "Bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s.Phase() == PhaseActive {
				snap := s.Snapshot()
				idx, ok := cards.FindFirstSet(snap.Table)
				if !ok {
					return
				}
				err := s.ClaimSet(name, Claim{Indices: idx[:], TableVersion: &snap.TableVersion})

				var ce *ClaimError
				if err != nil && !errors.As(err, &ce) && !errors.Is(err, ErrRoomNotFound) {
					t.Errorf("%s: %v", name, err)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for s.Phase() == PhaseActive {
			_, _, _ = s.Hint("Alice")
		}
	}()

	wg.Wait()

	final := s.Snapshot()
	if got := final.DeckRemaining + len(final.Table) + 3*final.Claims; got != 81 {
		t.Errorf("card count %d, want 81", got)
	}
	if final.Players[0].Score+final.Players[1].Score != final.Claims {
		t.Errorf("scores %+v do not add up to %d claims", final.Players, final.Claims)
	}
}
