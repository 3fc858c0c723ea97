// setbox SET rooms
//
// Players race to spot sets of three cards on a shared table. The server keeps
// one room per 8-character room ID and relays every change to the players in it.
//
// Features:
// - One WebSocket per client at /ws; a connection may create or join rooms
// - Rooms are either authoritative (the server deals and checks every claimed
//   set) or trusted (players push deck, table and scores themselves)
// - Display names are unique within a room and identify players
// - The first player still present hosts the room and may start or end it
// - Optional countdown per room, broadcast every tick
// - Rooms end when the deck runs out with no set left, when the countdown
//   reaches zero, when the host ends them, or when everyone has left
// - Idle rooms are reaped after a configurable timeout
// - Room summaries as JSON, and a QR code to share a room, backed by go-qrcode

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/setbox/internal/cards"
	"github.com/Seednode/setbox/internal/protocol"
	"github.com/Seednode/setbox/internal/rooms"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// conn ties one websocket to its outbound feed.
type conn struct {
	cfg    *Config
	reg    *rooms.Registry
	ws     *websocket.Conn
	client *rooms.Client
	addr   string
}

func serveWS(cfg *Config, reg *rooms.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrade from %s failed: %v", realIP(r), err)
			return
		}

		c := &conn{
			cfg:    cfg,
			reg:    reg,
			ws:     ws,
			client: rooms.NewClient(cfg.sendBuffer),
			addr:   realIP(r),
		}

		logf(cfg, "SERVE: Connection %s from %s", c.client.ID, c.addr)

		go c.writePump()
		c.readPump()
	}
}

func (c *conn) readPump() {
	defer func() {
		c.reg.Disconnect(c.client)
		_ = c.ws.Close()

		logf(c.cfg, "SERVE: Connection %s from %s closed", c.client.ID, c.addr)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		c.dispatch(data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.client.Feed():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := protocol.Encode(msg)
			if err != nil {
				errorf("encoding %s: %v", msg.MessageKind(), err)
				continue
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one client message and applies it. Failures are reported
// to this connection only.
func (c *conn) dispatch(data []byte) {
	req, err := protocol.Decode(data)
	if err != nil {
		c.reply("", err)
		return
	}

	roomID := ""
	if rr, ok := req.(protocol.RoomRequest); ok {
		roomID = rr.Room()
	}

	if err := c.handle(req); err != nil {
		c.reply(roomID, err)
	}
}

func (c *conn) handle(req protocol.Request) error {
	switch m := req.(type) {
	case protocol.CreateRoom:
		settings, err := roomSettings(c.cfg, m)
		if err != nil {
			return err
		}
		_, err = c.reg.Create(c.client, m.DisplayName, settings)
		return err

	case protocol.JoinRoom:
		_, _, err := c.reg.Join(m.RoomID, c.client, m.DisplayName)
		return err
	}

	rr, ok := req.(protocol.RoomRequest)
	if !ok {
		return &protocol.DecodeError{Kind: req.Kind(), Reason: "unsupported request"}
	}

	s, name, err := c.reg.Resolve(c.client, rr.Room())
	if err != nil {
		return err
	}

	if mode := s.Settings().Mode; !mode.Permits(req.Kind()) {
		return rooms.ErrWrongMode
	}

	switch m := req.(type) {
	case protocol.LeaveRoom:
		return s.Leave(name)
	case protocol.StartGame:
		return s.Start(name)
	case protocol.ReplaceState:
		return s.ReplaceState(name, m.Deck, m.Table, m.Started)
	case protocol.ClaimSet:
		return s.ClaimSet(name, rooms.Claim{
			Indices:      m.CardIndices,
			TableVersion: m.TableVersion,
			Cards:        m.Cards,
		})
	case protocol.RecordScore:
		return s.RecordScore(name, m.PlayerIdentity)
	case protocol.RequestHint:
		_, _, err := s.Hint(name)
		return err
	case protocol.DealMore:
		return s.DealMore(name)
	case protocol.EndRoom:
		return s.End(name)
	default:
		return &protocol.DecodeError{Kind: req.Kind(), Reason: "unsupported request"}
	}
}

func (c *conn) reply(roomID string, err error) {
	logf(c.cfg, "ROOMS: Rejected request from %s: %v", c.client.ID, err)

	var ce *rooms.ClaimError
	if errors.As(err, &ce) {
		c.client.Deliver(protocol.SetResult{
			RoomID:   roomID,
			Accepted: false,
			Reason:   ce.Reason,
			Kind:     rooms.ErrorKind(err),
		})
		return
	}

	c.client.Deliver(protocol.Error{
		RoomID:  roomID,
		Kind:    rooms.ErrorKind(err),
		Message: err.Error(),
	})
}

// roomSettings fills in server defaults for anything create_room left out.
func roomSettings(cfg *Config, m protocol.CreateRoom) (rooms.Settings, error) {
	mode := m.Mode
	if mode == "" {
		mode = protocol.Mode(cfg.mode)
	}

	name := m.Variant
	if name == "" {
		name = cfg.variant
	}

	variant, err := cards.ParseVariant(name)
	if err != nil {
		return rooms.Settings{}, &protocol.DecodeError{Kind: m.Kind(), Reason: err.Error()}
	}

	countdown := cfg.countdown
	if m.CountdownSeconds > 0 {
		countdown = time.Duration(m.CountdownSeconds) * time.Second
	}

	return rooms.Settings{
		Mode:      mode,
		Variant:   variant,
		Countdown: countdown,
	}, nil
}

func serveRoomSummary(cfg *Config, reg *rooms.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s, err := reg.Get(ps.ByName("roomid"))
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
			errs <- err

			return
		}
	}
}

func serveRoomList(cfg *Config, reg *rooms.Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(reg.Summaries()); err != nil {
			errs <- err

			return
		}
	}
}

// qrHandler generates a PNG QR code for a room's URL using go-qrcode.
func qrHandler(reg *rooms.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if _, err := reg.Get(roomID); err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../rooms/:roomid/qr; strip trailing "/qr" to get the room URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")
		url := scheme + "://" + r.Host + path

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerSetGame sets up routes so that:
//   - $prefix/ws                   → WebSocket for every room the client joins
//   - $prefix/rooms                → JSON summaries of all rooms
//   - $prefix/rooms/:roomid        → JSON summary of one room
//   - $prefix/rooms/:roomid/qr     → PNG QR code for that room's URL
func registerSetGame(cfg *Config, reg *rooms.Registry, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, reg))

	mux.GET(cfg.prefix+"/rooms", serveRoomList(cfg, reg, errs))

	mux.GET(cfg.prefix+"/rooms/:roomid", serveRoomSummary(cfg, reg, errs))

	mux.GET(cfg.prefix+"/rooms/:roomid/qr", qrHandler(reg))
}
