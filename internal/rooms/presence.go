package rooms

import "sync"

// Presence remembers which rooms each connection has joined and under
// which display name, so a dropped connection can be removed everywhere.
type Presence struct {
	mu    sync.Mutex
	conns map[string]map[string]string // client id -> room id -> display name
}

func NewPresence() *Presence {
	return &Presence{
		conns: make(map[string]map[string]string),
	}
}

func (p *Presence) Track(clientID, roomID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rooms, ok := p.conns[clientID]
	if !ok {
		rooms = make(map[string]string)
		p.conns[clientID] = rooms
	}
	rooms[roomID] = name
}

func (p *Presence) Forget(clientID, roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rooms, ok := p.conns[clientID]
	if !ok {
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(p.conns, clientID)
	}
}

// Lookup returns the display name clientID uses in roomID.
func (p *Presence) Lookup(clientID, roomID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name, ok := p.conns[clientID][roomID]
	return name, ok
}

// Rooms returns a copy of clientID's memberships.
func (p *Presence) Rooms(clientID string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]string, len(p.conns[clientID]))
	for room, name := range p.conns[clientID] {
		out[room] = name
	}
	return out
}

// Drop removes clientID entirely and returns what it was tracking.
func (p *Presence) Drop(clientID string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	rooms := p.conns[clientID]
	delete(p.conns, clientID)
	return rooms
}
