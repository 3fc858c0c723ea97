package rooms

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Seednode/setbox/internal/cards"
	"github.com/Seednode/setbox/internal/protocol"
)

type Phase int

const (
	PhaseLobby Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Why a room ended, as reported in game_over.
const (
	EndedByHost     = "ended"
	EndedExhausted  = "exhausted"
	EndedTimer      = "timer"
	EndedAbandoned  = "abandoned"
	EndedIdle       = "idle"
	EndedAtShutdown = "shutdown"
)

// Settings are fixed when a room is created.
type Settings struct {
	Mode      protocol.Mode
	Variant   cards.Variant
	Countdown time.Duration
}

type player struct {
	name   string
	score  int
	client *Client
}

// Session is one room's authoritative state. Every exported method takes
// the session lock, so mutations of one room never interleave.
type Session struct {
	id       string
	settings Settings
	registry *Registry

	mu           sync.Mutex
	phase        Phase
	players      []*player
	deck         []cards.Card
	table        []cards.Card
	tableVersion uint64
	claims       int
	started      bool
	dealt        bool
	countdown    *countdown
	remaining    time.Duration
	emptyTimer   *time.Timer
	createdAt    time.Time
	lastActive   time.Time
	endReason    string
	winner       string
}

func newSession(id string, settings Settings, r *Registry) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		settings:   settings,
		registry:   r,
		createdAt:  now,
		lastActive: now,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Settings() Settings {
	return s.settings
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// Snapshot is a copy of a room's state at one point in time.
type Snapshot struct {
	RoomID        string                 `json:"roomId"`
	Mode          protocol.Mode          `json:"mode"`
	Variant       string                 `json:"variant"`
	Phase         Phase                  `json:"phase"`
	Players       []protocol.PlayerScore `json:"players"`
	Deck          []cards.Card           `json:"-"`
	DeckRemaining int                    `json:"deckRemaining"`
	Table         []cards.Card           `json:"table"`
	TableVersion  uint64                 `json:"tableVersion"`
	Started       bool                   `json:"started"`
	Claims        int                    `json:"claims"`
	SetsOnTable   int                    `json:"setsOnTable"`
	Remaining     time.Duration          `json:"-"`
	Winner        string                 `json:"winner,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	LastActive    time.Time              `json:"lastActive"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		RoomID:        s.id,
		Mode:          s.settings.Mode,
		Variant:       s.settings.Variant.Name,
		Phase:         s.phase,
		Players:       s.scoresLocked(),
		Deck:          slices.Clone(s.deck),
		DeckRemaining: len(s.deck),
		Table:         slices.Clone(s.table),
		TableVersion:  s.tableVersion,
		Started:       s.started,
		Claims:        s.claims,
		SetsOnTable:   len(cards.FindAllSets(s.table)),
		Remaining:     s.remaining,
		Winner:        s.winner,
		CreatedAt:     s.createdAt,
		LastActive:    s.lastActive,
	}
}

func (s *Session) scoresLocked() []protocol.PlayerScore {
	out := make([]protocol.PlayerScore, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, protocol.PlayerScore{DisplayName: p.name, Score: p.score})
	}
	return out
}

func (s *Session) findLocked(name string) *player {
	for _, p := range s.players {
		if p.name == name {
			return p
		}
	}
	return nil
}

// memberLocked checks that the room is still open and name is in it.
func (s *Session) memberLocked(name string) (*player, error) {
	if s.phase == PhaseEnded {
		return nil, ErrRoomNotFound
	}

	p := s.findLocked(name)
	if p == nil {
		return nil, ErrNotMember
	}

	s.lastActive = time.Now()

	return p, nil
}

// The host is the earliest joined player still present.
func (s *Session) isHostLocked(p *player) bool {
	return len(s.players) > 0 && s.players[0] == p
}

func (s *Session) requireMode(mode protocol.Mode) error {
	if s.settings.Mode != mode {
		return fmt.Errorf("%w: room %s is %s", ErrWrongMode, s.id, s.settings.Mode)
	}
	return nil
}

// Join adds a player and returns the room as the newcomer should see it.
func (s *Session) Join(client *Client, displayName string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseEnded {
		return Snapshot{}, ErrRoomNotFound
	}

	if err := s.addPlayerLocked(client, displayName); err != nil {
		return Snapshot{}, err
	}

	return s.snapshotLocked(), nil
}

func (s *Session) addPlayerLocked(client *Client, displayName string) error {
	name, err := protocol.CleanName(displayName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	for _, p := range s.players {
		if p.name == name {
			return ErrDuplicateIdentity
		}
		if p.client == client {
			return ErrAlreadyMember
		}
	}

	s.players = append(s.players, &player{name: name, client: client})
	s.lastActive = time.Now()

	if s.emptyTimer != nil {
		s.emptyTimer.Stop()
		s.emptyTimer = nil
	}

	s.registry.presence.Track(client.ID, s.id, name)
	s.registry.logf("ROOMS: Player %q joined %s", name, s.id)

	s.publish(protocol.PlayerJoined{
		RoomID:      s.id,
		DisplayName: name,
		Players:     s.scoresLocked(),
	}, "")

	// Late joiners get the game in progress without asking for it.
	if s.phase == PhaseActive {
		s.publishTo(name, s.gameStateLocked())
		if s.countdown != nil {
			s.publishTo(name, s.timerUpdateLocked())
		}
	}

	return nil
}

// Leave removes a player. A room left empty is ended, either now or after
// the registry's grace period.
func (s *Session) Leave(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(displayName)
	if err != nil {
		return err
	}

	s.removePlayerLocked(p)

	return nil
}

// leaveClient is Leave for a connection that has gone away. It is a no-op
// when name now belongs to a different connection.
func (s *Session) leaveClient(client *Client, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseEnded {
		return
	}

	p := s.findLocked(displayName)
	if p == nil || p.client != client {
		return
	}

	s.removePlayerLocked(p)
}

func (s *Session) removePlayerLocked(p *player) {
	s.players = slices.DeleteFunc(s.players, func(q *player) bool { return q == p })
	s.registry.presence.Forget(p.client.ID, s.id)
	s.lastActive = time.Now()

	s.registry.logf("ROOMS: Player %q left %s", p.name, s.id)

	s.publish(protocol.PlayerLeft{
		RoomID:      s.id,
		DisplayName: p.name,
		Players:     s.scoresLocked(),
	}, "")
	s.publish(s.scoreboardLocked(), "")

	if len(s.players) > 0 {
		return
	}

	grace := s.registry.opts.EmptyRoomGrace
	if grace <= 0 {
		s.endLocked(EndedAbandoned)
		return
	}

	s.emptyTimer = time.AfterFunc(grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.phase != PhaseEnded && len(s.players) == 0 {
			s.endLocked(EndedAbandoned)
		}
	})
}

// Start moves the room from lobby to active. In authoritative rooms the
// server builds the deck and deals the table.
func (s *Session) Start(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(displayName)
	if err != nil {
		return err
	}
	if !s.isHostLocked(p) {
		return ErrNotHost
	}
	if s.phase != PhaseLobby {
		return ErrAlreadyStarted
	}

	s.phase = PhaseActive
	s.started = true

	if s.settings.Mode == protocol.ModeAuthoritative {
		s.deck = cards.BuildDeck(s.settings.Variant, s.registry.newRand())
		s.dealLocked()
		s.dealt = true
	}
	s.tableVersion++

	s.registry.logf("ROOMS: Started %s (%s, %s deck)", s.id, s.settings.Mode, s.settings.Variant.Name)

	s.publish(s.gameStateLocked(), "")
	s.publish(s.scoreboardLocked(), "")
	s.startCountdownLocked()

	s.checkTerminalLocked()

	return nil
}

// dealLocked fills the table up to its target size, then keeps adding three
// cards at a time while no set is visible and the deck has cards left.
func (s *Session) dealLocked() {
	if want := s.registry.opts.TableSize - len(s.table); want > 0 {
		s.drawLocked(want)
	}

	for len(s.deck) > 0 && !cards.HasAnySet(s.table) {
		s.drawLocked(3)
	}
}

func (s *Session) drawLocked(n int) {
	n = min(n, len(s.deck))
	s.table = append(s.table, s.deck[:n]...)
	s.deck = s.deck[n:]
}

// ReplaceState overwrites deck and table with what a trusted player sent.
// Nothing is checked against the card rules.
func (s *Session) ReplaceState(displayName string, deck, table []cards.Card, started bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.memberLocked(displayName); err != nil {
		return err
	}
	if err := s.requireMode(protocol.ModeTrusted); err != nil {
		return err
	}
	if s.phase != PhaseActive {
		return ErrNotActive
	}

	s.deck = slices.Clone(deck)
	s.table = slices.Clone(table)
	s.started = started
	if len(deck) > 0 || len(table) > 0 {
		s.dealt = true
	}
	s.tableVersion++

	// The sender already has this state.
	s.publish(s.gameStateLocked(), displayName)

	s.checkTerminalLocked()

	return nil
}

// Claim is a set claim against the current table.
type Claim struct {
	Indices      []int
	TableVersion *uint64
	Cards        []cards.Card
}

// ClaimSet checks a claim with the card rules and applies it. A rejected
// claim returns a *ClaimError and changes nothing.
func (s *Session) ClaimSet(displayName string, claim Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(displayName)
	if err != nil {
		return err
	}
	if err := s.requireMode(protocol.ModeAuthoritative); err != nil {
		return err
	}
	if s.phase != PhaseActive {
		return ErrNotActive
	}

	picked, err := s.resolveClaimLocked(claim)
	if err != nil {
		return err
	}

	kept := make([]cards.Card, 0, len(s.table))
	for i, c := range s.table {
		if !slices.Contains(claim.Indices, i) {
			kept = append(kept, c)
		}
	}
	s.table = kept
	p.score++
	s.claims++
	s.dealLocked()
	s.tableVersion++

	s.registry.logf("ROOMS: %q claimed a set in %s (score %d)", p.name, s.id, p.score)

	s.publish(protocol.SetResult{
		RoomID:   s.id,
		Accepted: true,
		Claimant: p.name,
		Cards:    picked,
	}, "")
	s.publish(s.gameStateLocked(), "")
	s.publish(s.scoreboardLocked(), "")

	s.checkTerminalLocked()

	return nil
}

func (s *Session) resolveClaimLocked(claim Claim) ([]cards.Card, error) {
	idx := claim.Indices
	if len(idx) != 3 || idx[0] == idx[1] || idx[1] == idx[2] || idx[0] == idx[2] {
		return nil, &ClaimError{Reason: ReasonInvalidIndices}
	}

	if claim.TableVersion != nil && *claim.TableVersion != s.tableVersion {
		return nil, &ClaimError{Reason: ReasonStaleIndices}
	}

	picked := make([]cards.Card, 0, 3)
	for _, i := range idx {
		if i < 0 || i >= len(s.table) {
			return nil, &ClaimError{Reason: ReasonInvalidIndices}
		}
		picked = append(picked, s.table[i])
	}

	if claim.Cards != nil && !slices.Equal(claim.Cards, picked) {
		return nil, &ClaimError{Reason: ReasonDeckTableMismatch}
	}

	if !cards.IsValidSet(picked[0], picked[1], picked[2]) {
		return nil, &ClaimError{Reason: ReasonNotASet}
	}

	return picked, nil
}

// RecordScore credits target with one set on the word of the sender. An
// unknown target changes nothing but still refreshes the scoreboard.
func (s *Session) RecordScore(displayName, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.memberLocked(displayName); err != nil {
		return err
	}
	if err := s.requireMode(protocol.ModeTrusted); err != nil {
		return err
	}
	if s.phase != PhaseActive {
		return ErrNotActive
	}

	if name, err := protocol.CleanName(target); err == nil {
		if p := s.findLocked(name); p != nil {
			p.score++
		}
	}

	s.publish(s.scoreboardLocked(), "")

	return nil
}

// Hint sends the first set on the table to the asking player only.
func (s *Session) Hint(displayName string) ([3]int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.memberLocked(displayName); err != nil {
		return [3]int{}, false, err
	}
	if s.phase != PhaseActive {
		return [3]int{}, false, ErrNotActive
	}

	found, ok := cards.FindFirstSet(s.table)

	hint := protocol.Hint{RoomID: s.id, CardIndices: []int{}}
	if ok {
		hint.CardIndices = found[:]
	}
	s.publishTo(displayName, hint)

	return found, ok, nil
}

// DealMore adds up to three cards to the table.
func (s *Session) DealMore(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.memberLocked(displayName); err != nil {
		return err
	}
	if err := s.requireMode(protocol.ModeAuthoritative); err != nil {
		return err
	}
	if s.phase != PhaseActive {
		return ErrNotActive
	}

	if len(s.deck) > 0 {
		s.drawLocked(3)
		s.tableVersion++
		s.publish(s.gameStateLocked(), "")
	}

	s.checkTerminalLocked()

	return nil
}

// End lets the host finish the game early.
func (s *Session) End(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(displayName)
	if err != nil {
		return err
	}
	if !s.isHostLocked(p) {
		return ErrNotHost
	}

	s.endLocked(EndedByHost)

	return nil
}

// terminate ends the room regardless of who asks. It reports false when
// the room had already ended.
func (s *Session) terminate(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.endLocked(reason)
}

// checkTerminalLocked ends the game once the deck is empty and the table
// holds no set. Trusted rooms are only checked after players have sent
// real cards.
func (s *Session) checkTerminalLocked() {
	if s.phase != PhaseActive || !s.dealt || !s.started {
		return
	}
	if len(s.deck) == 0 && !cards.HasAnySet(s.table) {
		s.endLocked(EndedExhausted)
	}
}

// endLocked is the only way into PhaseEnded.
func (s *Session) endLocked(reason string) bool {
	if s.phase == PhaseEnded {
		return false
	}

	s.phase = PhaseEnded
	s.endReason = reason
	s.winner = leader(s.players)

	if s.countdown != nil {
		s.countdown.cancel()
	}
	if s.emptyTimer != nil {
		s.emptyTimer.Stop()
		s.emptyTimer = nil
	}

	s.publish(protocol.GameOver{
		RoomID:  s.id,
		Winner:  s.winner,
		Players: s.scoresLocked(),
		Reason:  reason,
	}, "")

	for _, p := range s.players {
		s.registry.presence.Forget(p.client.ID, s.id)
	}
	s.registry.remove(s)

	s.registry.logf("ROOMS: Ended %s (%s), winner %q", s.id, reason, s.winner)

	return true
}

// leader returns the player with the strictly highest score. Ties go to
// whoever joined first.
func leader(players []*player) string {
	var best *player
	for _, p := range players {
		if best == nil || p.score > best.score {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.name
}
