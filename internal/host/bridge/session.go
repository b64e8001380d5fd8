// Package bridge is the canonical host implementation: one websocket to
// the emulator's plugin endpoint, JSON messages per internal/protocol.
// Data capabilities are served from caches fed by the read loop; a miss
// issues a QUERY and reports not-ok instead of blocking the caller.
package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/protocol"
)

type Config struct {
	URL           string
	Validator     *protocol.Validator
	FishingAsSurf bool
	Logger        *log.Logger
}

// moveOverrideFrames is how long MoveState reports ACTIVE after a MOVE_TO
// is sent, before the host's frame reports catch up.
const moveOverrideFrames = 60

type Session struct {
	cfg Config

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected bool
	lastErr   string

	conn    *websocket.Conn
	writeMu sync.Mutex

	profileID string
	caps      host.CapabilitySet

	frame     protocol.Frame
	haveFrame bool

	tables  map[string]map[host.Method][]string
	grids   map[string]host.TileGrid
	warps   map[string][]host.Warp
	shinies *protocol.Shinies
	pending map[string]bool

	moveState     host.MoveState
	moveOverride  bool
	overrideUntil uint64

	frames chan protocol.Frame
	events chan protocol.Event
}

func New(cfg Config) *Session {
	return &Session{
		cfg:     cfg,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		tables:  map[string]map[host.Method][]string{},
		grids:   map[string]host.TileGrid{},
		warps:   map[string][]host.Warp{},
		pending: map[string]bool{},
		frames:  make(chan protocol.Frame, 8),
		events:  make(chan protocol.Event, 64),
	}
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.disconnect()
		<-s.done
	})
}

// Frames delivers every FRAME message; the oldest is dropped when the
// runner falls behind.
func (s *Session) Frames() <-chan protocol.Frame { return s.frames }

// Events delivers every EVENT message in arrival order.
func (s *Session) Events() <-chan protocol.Event { return s.events }

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) ProfileID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileID
}

func (s *Session) disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// --- host.EncounterSource ---

func (s *Session) EffectiveTable(m host.MapID) (map[host.Method][]string, bool) {
	key := m.Key()
	s.mu.RLock()
	t, ok := s.tables[key]
	s.mu.RUnlock()
	if ok {
		out := make(map[host.Method][]string, len(t))
		for method, pool := range t {
			out[method] = append([]string(nil), pool...)
		}
		return out, true
	}
	s.queryOnce("table:"+key, protocol.Query{
		BaseMessage: protocol.Base(protocol.TypeQuery),
		What:        "table",
		MapGroup:    m.Group,
		MapNumber:   m.Number,
	})
	return nil, false
}

// --- host.MapData ---

func (s *Session) Grid(m host.MapID) (host.TileGrid, bool) {
	key := m.Key()
	s.mu.RLock()
	g, ok := s.grids[key]
	s.mu.RUnlock()
	if ok {
		return g, true
	}
	s.queryOnce("tiles:"+key, protocol.Query{
		BaseMessage: protocol.Base(protocol.TypeQuery),
		What:        "tiles",
		MapGroup:    m.Group,
		MapNumber:   m.Number,
	})
	return host.TileGrid{}, false
}

func (s *Session) TerrainAt(m host.MapID, c host.Coord) (host.Terrain, bool) {
	g, ok := s.Grid(m)
	if !ok {
		return host.TerrainNone, false
	}
	return g.At(c.X, c.Y), true
}

func (s *Session) CurrentWarps() ([]host.Warp, bool) {
	cur, ok := s.CurrentMap()
	if !ok {
		return nil, false
	}
	key := cur.Key()
	s.mu.RLock()
	w, ok := s.warps[key]
	s.mu.RUnlock()
	if ok {
		return append([]host.Warp(nil), w...), true
	}
	s.queryOnce("warps:"+key, protocol.Query{
		BaseMessage: protocol.Base(protocol.TypeQuery),
		What:        "warps",
		MapGroup:    cur.Group,
		MapNumber:   cur.Number,
	})
	return nil, false
}

// --- host.Position ---

func (s *Session) CurrentMap() (host.MapID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.haveFrame {
		return host.UnknownMap, false
	}
	return host.MapID{Group: s.frame.MapGroup, Number: s.frame.MapNumber}, true
}

func (s *Session) PlayerCoord() (host.Coord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.haveFrame {
		return host.Coord{}, false
	}
	return host.Coord{X: s.frame.PlayerX, Y: s.frame.PlayerY}, true
}

// --- host.Mover ---

func (s *Session) MoveTo(m host.MapID, c host.Coord, opts host.MoveOptions) error {
	err := s.send(protocol.MoveTo{
		BaseMessage:     protocol.Base(protocol.TypeMoveTo),
		MapGroup:        m.Group,
		MapNumber:       m.Number,
		X:               c.X,
		Y:               c.Y,
		Tolerance:       opts.Tolerance,
		AvoidEncounters: opts.AvoidEncounters,
	})
	if err != nil {
		return fmt.Errorf("%s: move_to: %w", protocol.ErrMoveFailed, err)
	}
	s.mu.Lock()
	s.moveOverride = true
	s.overrideUntil = s.frame.Counter + moveOverrideFrames
	s.mu.Unlock()
	return nil
}

func (s *Session) MoveState() host.MoveState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.moveOverride {
		return host.MoveActive
	}
	return s.moveState
}

func (s *Session) CancelMove() {
	_ = s.send(protocol.MoveTo{
		BaseMessage: protocol.Base(protocol.TypeMoveTo),
		Cancel:      true,
	})
	s.mu.Lock()
	s.moveOverride = false
	s.moveState = host.MoveIdle
	s.mu.Unlock()
}

// --- host.Input ---

func (s *Session) Press(button string) {
	_ = s.send(protocol.Press{BaseMessage: protocol.Base(protocol.TypePress), Button: button})
}

func (s *Session) AwaitingInput() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.haveFrame && s.frame.AwaitingInput
}

func (s *Session) ResetHeldInputs() {
	_ = s.send(protocol.Base(protocol.TypeResetInputs))
}

// --- host.Collections ---

func (s *Session) StorageShinies() ([]host.Individual, bool) {
	sh := s.shinySnapshot()
	if sh == nil || !sh.StorageOK {
		return nil, false
	}
	return toIndividuals(sh.Storage), true
}

func (s *Session) PartyShinies() ([]host.Individual, bool) {
	sh := s.shinySnapshot()
	if sh == nil || !sh.PartyOK {
		return nil, false
	}
	return toIndividuals(sh.Party), true
}

// RequestShinyScan invalidates the shiny cache and asks for a fresh scan.
func (s *Session) RequestShinyScan() {
	s.mu.Lock()
	s.shinies = nil
	delete(s.pending, "shinies")
	s.mu.Unlock()
	s.queryOnce("shinies", protocol.Query{
		BaseMessage: protocol.Base(protocol.TypeQuery),
		What:        "shinies",
	})
}

func (s *Session) shinySnapshot() *protocol.Shinies {
	s.mu.RLock()
	sh := s.shinies
	s.mu.RUnlock()
	if sh == nil {
		s.queryOnce("shinies", protocol.Query{
			BaseMessage: protocol.Base(protocol.TypeQuery),
			What:        "shinies",
		})
	}
	return sh
}

func toIndividuals(in []protocol.WireIndividual) []host.Individual {
	out := make([]host.Individual, 0, len(in))
	for _, w := range in {
		out = append(out, host.Individual{Species: w.Species, VariantTag: w.VariantTag})
	}
	return out
}

// --- host.Control ---

func (s *Session) Pause() {
	_ = s.send(protocol.Base(protocol.TypePause))
}

func (s *Session) SetManual(enabled bool) {
	_ = s.send(protocol.Manual{BaseMessage: protocol.Base(protocol.TypeManual), Enabled: enabled})
}

func (s *Session) SetStatus(line string) {
	_ = s.send(protocol.Status{BaseMessage: protocol.Base(protocol.TypeStatus), Line: line})
}

// --- host.Capabilities ---

func (s *Session) Usable() host.CapabilitySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.caps == nil {
		return nil
	}
	out := make(host.CapabilitySet, len(s.caps))
	for m, ok := range s.caps {
		out[m] = ok
	}
	return out
}

// queryOnce sends a QUERY at most once until its answer arrives.
func (s *Session) queryOnce(key string, q protocol.Query) {
	s.mu.Lock()
	if s.pending[key] {
		s.mu.Unlock()
		return
	}
	s.pending[key] = true
	s.mu.Unlock()
	if err := s.send(q); err != nil {
		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
	}
}

func (s *Session) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", protocol.ErrInternal, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) run() {
	defer close(s.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-s.stop:
			s.disconnect()
			return
		default:
		}

		if err := s.connectAndReadLoop(); err != nil {
			s.mu.Lock()
			s.connected = false
			s.lastErr = err.Error()
			s.mu.Unlock()
			s.logf("connection lost: %v (retry in %s)", err, backoff)
			select {
			case <-s.stop:
				s.disconnect()
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
			continue
		}
		return
	}
}

func (s *Session) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(s.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s.mu.Lock()
	s.conn = conn
	s.lastErr = ""
	// Reconnects start from a clean slate: queries answered on the old
	// connection may never arrive on this one.
	s.pending = map[string]bool{}
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.logf("%s: undecodable message dropped", protocol.ErrProtoBadRequest)
		return
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		s.logf("%s: message speaks %s, engine speaks %s, dropped", protocol.ErrVersionMismatch, base.ProtocolVersion, protocol.Version)
		return
	}
	if err := s.cfg.Validator.Validate(base.Type, msg); err != nil {
		s.logf("%s message dropped: %v", base.Type, err)
		return
	}

	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.Welcome
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		caps := make(host.CapabilitySet, len(w.Capabilities))
		for _, raw := range w.Capabilities {
			caps[host.NormalizeMethod(raw, s.cfg.FishingAsSurf)] = true
		}
		s.mu.Lock()
		s.profileID = w.ProfileID
		s.caps = caps
		s.connected = true
		s.mu.Unlock()
		s.logf("welcome: profile %s, %d capabilities", w.ProfileID, len(caps))

	case protocol.TypeFrame:
		var f protocol.Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			return
		}
		s.mu.Lock()
		s.frame = f
		s.haveFrame = true
		s.moveState = parseMoveState(f.MoveState)
		if s.moveOverride && (s.moveState != host.MoveIdle || f.Counter >= s.overrideUntil) {
			s.moveOverride = false
		}
		s.mu.Unlock()
		select {
		case s.frames <- f:
		default:
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- f:
			default:
			}
		}

	case protocol.TypeEvent:
		var e protocol.Event
		if err := json.Unmarshal(msg, &e); err != nil {
			return
		}
		select {
		case s.events <- e:
		default:
			s.logf("event queue full, dropping %s", e.Name)
		}

	case protocol.TypeTable:
		var t protocol.Table
		if err := json.Unmarshal(msg, &t); err != nil {
			return
		}
		m := host.MapID{Group: t.MapGroup, Number: t.MapNumber}
		table := make(map[host.Method][]string, len(t.Methods))
		for raw, pool := range t.Methods {
			method := host.NormalizeMethod(raw, s.cfg.FishingAsSurf)
			table[method] = append(table[method], pool...)
		}
		s.mu.Lock()
		s.tables[m.Key()] = table
		delete(s.pending, "table:"+m.Key())
		s.mu.Unlock()

	case protocol.TypeTiles:
		var t protocol.Tiles
		if err := json.Unmarshal(msg, &t); err != nil {
			return
		}
		m := host.MapID{Group: t.MapGroup, Number: t.MapNumber}
		g := host.TileGrid{Width: t.Width, Height: t.Height, Cells: make([]host.Terrain, len(t.Cells))}
		for i, c := range t.Cells {
			g.Cells[i] = host.Terrain(c)
		}
		s.mu.Lock()
		s.grids[m.Key()] = g
		delete(s.pending, "tiles:"+m.Key())
		s.mu.Unlock()

	case protocol.TypeWarps:
		var w protocol.Warps
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		m := host.MapID{Group: w.MapGroup, Number: w.MapNumber}
		warps := make([]host.Warp, 0, len(w.Warps))
		for _, ww := range w.Warps {
			warps = append(warps, host.Warp{
				Dest:      host.MapID{Group: ww.DestGroup, Number: ww.DestNumber},
				DestCoord: host.Coord{X: ww.DestX, Y: ww.DestY},
				Local:     host.Coord{X: ww.LocalX, Y: ww.LocalY},
			})
		}
		s.mu.Lock()
		s.warps[m.Key()] = warps
		delete(s.pending, "warps:"+m.Key())
		s.mu.Unlock()

	case protocol.TypeShinies:
		var sh protocol.Shinies
		if err := json.Unmarshal(msg, &sh); err != nil {
			return
		}
		s.mu.Lock()
		s.shinies = &sh
		delete(s.pending, "shinies")
		s.mu.Unlock()

	default:
		s.logf("%s: unknown message type %q dropped", protocol.ErrUnknownType, base.Type)
	}
}

func parseMoveState(raw string) host.MoveState {
	switch raw {
	case "ACTIVE":
		return host.MoveActive
	case "ARRIVED":
		return host.MoveArrived
	case "FAILED":
		return host.MoveFailed
	default:
		return host.MoveIdle
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}
