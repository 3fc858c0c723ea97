// Package rooms keeps every live game room in memory: the registry that
// names them, the per-room state machine, fan-out to connected players,
// presence tracking for disconnects, and countdown clocks.
package rooms

import (
	"crypto/rand"
	"fmt"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/Seednode/setbox/internal/protocol"
)

const (
	roomIDLength  = 8
	roomIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Options configure a Registry. Zero values fall back to defaults.
type Options struct {
	// TableSize is how many cards an authoritative room keeps face up.
	TableSize int
	// Tick is the countdown clock's resolution.
	Tick time.Duration
	// EmptyRoomGrace keeps a room without players around for reconnects.
	// Zero ends it as soon as the last player leaves.
	EmptyRoomGrace time.Duration
	// SessionTimeout ends rooms without activity. Zero disables the reaper.
	SessionTimeout time.Duration
	// Rand returns the shuffle source for a new deck. Nil uses the runtime's.
	Rand func() *mathrand.Rand
	Logf func(format string, args ...any)
}

// Registry owns every room for the lifetime of the process.
type Registry struct {
	opts     Options
	presence *Presence

	mu       sync.Mutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
}

func NewRegistry(opts Options) *Registry {
	if opts.TableSize <= 0 {
		opts.TableSize = 12
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}

	r := &Registry{
		opts:     opts,
		presence: NewPresence(),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}

	if opts.SessionTimeout > 0 {
		go r.reaperLoop()
	}

	return r
}

func (r *Registry) logf(format string, args ...any) {
	if r.opts.Logf != nil {
		r.opts.Logf(format, args...)
	}
}

func (r *Registry) newRand() *mathrand.Rand {
	if r.opts.Rand == nil {
		return nil
	}
	return r.opts.Rand()
}

func (r *Registry) Presence() *Presence {
	return r.presence
}

// Create opens a room with client as its host and first player.
func (r *Registry) Create(client *Client, displayName string, settings Settings) (*Session, error) {
	if _, err := protocol.CleanName(displayName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if settings.Mode == "" {
		settings.Mode = protocol.ModeAuthoritative
	}
	if settings.Variant.Size() == 0 {
		return nil, fmt.Errorf("room variant %q has no cards", settings.Variant.Name)
	}

	r.mu.Lock()
	id, err := r.newRoomIDLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	s := newSession(id, settings, r)

	// Hold the new room until its host is in, so nobody can join first.
	s.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	defer s.mu.Unlock()

	client.Deliver(protocol.RoomCreated{
		RoomID:  id,
		Mode:    settings.Mode,
		Variant: settings.Variant.Name,
	})

	if err := s.addPlayerLocked(client, displayName); err != nil {
		r.remove(s)
		return nil, err
	}

	r.logf("ROOMS: Created %s for %q", id, displayName)

	return s, nil
}

// newRoomIDLocked draws identifiers until one is unused.
func (r *Registry) newRoomIDLocked() (string, error) {
	for {
		id, err := randomID()
		if err != nil {
			return "", err
		}
		if _, exists := r.sessions[id]; !exists {
			return id, nil
		}
	}
}

func randomID() (string, error) {
	// Bytes at or above this bound are skipped to keep every letter equally likely.
	const bound = 256 - 256%len(roomIDLetters)

	out := make([]byte, 0, roomIDLength)
	buf := make([]byte, roomIDLength*2)
	for len(out) < roomIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating room id: %w", err)
		}
		for _, b := range buf {
			if int(b) >= bound {
				continue
			}
			out = append(out, roomIDLetters[int(b)%len(roomIDLetters)])
			if len(out) == roomIDLength {
				break
			}
		}
	}

	return string(out), nil
}

func (r *Registry) Get(roomID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return s, nil
}

// Join adds client to an existing room under displayName.
func (r *Registry) Join(roomID string, client *Client, displayName string) (*Session, Snapshot, error) {
	s, err := r.Get(roomID)
	if err != nil {
		return nil, Snapshot{}, err
	}

	snap, err := s.Join(client, displayName)
	if err != nil {
		return nil, Snapshot{}, err
	}

	return s, snap, nil
}

// Resolve finds a room and the display name client plays under there.
func (r *Registry) Resolve(client *Client, roomID string) (*Session, string, error) {
	s, err := r.Get(roomID)
	if err != nil {
		return nil, "", err
	}

	name, ok := r.presence.Lookup(client.ID, roomID)
	if !ok {
		return nil, "", ErrNotMember
	}

	return s, name, nil
}

// End finishes a room no matter who is in it, reporting reason in game_over.
func (r *Registry) End(roomID, reason string) error {
	s, err := r.Get(roomID)
	if err != nil {
		return err
	}

	if !s.terminate(reason) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return nil
}

// Disconnect removes a closed connection from every room it joined.
func (r *Registry) Disconnect(client *Client) {
	for roomID, name := range r.presence.Drop(client.ID) {
		s, err := r.Get(roomID)
		if err != nil {
			continue
		}
		s.leaveClient(client, name)
	}

	client.Close()
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// list copies the current rooms so they can be locked one at a time.
func (r *Registry) list() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Summaries snapshots every room.
func (r *Registry) Summaries() []Snapshot {
	sessions := r.list()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// reaperLoop periodically ends rooms idle longer than SessionTimeout.
func (r *Registry) reaperLoop() {
	ticker := time.NewTicker(r.opts.SessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reap(time.Now().Add(-r.opts.SessionTimeout))
		}
	}
}

func (r *Registry) reap(cutoff time.Time) {
	for _, s := range r.list() {
		s.mu.Lock()
		if s.lastActive.Before(cutoff) {
			s.endLocked(EndedIdle)
		}
		s.mu.Unlock()
	}
}

// Close stops the reaper and ends every remaining room.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	for _, s := range r.list() {
		if err := r.End(s.id, EndedAtShutdown); err != nil {
			r.logf("ROOMS: %v", err)
		}
	}
}
