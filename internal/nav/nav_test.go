package nav

import (
	"strings"
	"testing"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/protocol"
	"github.com/highvoltaage/pokebot-prof-oak/internal/route"
	"github.com/highvoltaage/pokebot-prof-oak/internal/tuning"
)

var (
	mapA = host.MapID{Group: 0, Number: 10}
	mapB = host.MapID{Group: 0, Number: 11}
	mapC = host.MapID{Group: 0, Number: 12}
	mapD = host.MapID{Group: 0, Number: 13}
)

type moveReq struct {
	m host.MapID
	c host.Coord
}

// sim is a minimal host: MoveTo teleports the player on the next
// MoveState poll, warp tiles fire when stepped on, and cross-map direct
// moves fail unless crossMapOK is set.
type sim struct {
	mapID      host.MapID
	coord      host.Coord
	grids      map[host.MapID]host.TileGrid
	warps      map[host.MapID][]host.Warp
	crossMapOK bool

	pending  *moveReq
	moves    []moveReq
	presses  []string
	resets   int
	awaiting bool
}

func (s *sim) Grid(m host.MapID) (host.TileGrid, bool) {
	g, ok := s.grids[m]
	return g, ok
}

func (s *sim) TerrainAt(m host.MapID, c host.Coord) (host.Terrain, bool) {
	g, ok := s.grids[m]
	if !ok {
		return host.TerrainNone, false
	}
	return g.At(c.X, c.Y), true
}

func (s *sim) CurrentWarps() ([]host.Warp, bool) {
	return s.warps[s.mapID], true
}

func (s *sim) MoveTo(m host.MapID, c host.Coord, _ host.MoveOptions) error {
	s.moves = append(s.moves, moveReq{m: m, c: c})
	s.pending = &moveReq{m: m, c: c}
	return nil
}

func (s *sim) MoveState() host.MoveState {
	if s.pending == nil {
		return host.MoveIdle
	}
	req := *s.pending
	s.pending = nil
	if req.m != s.mapID && !s.crossMapOK {
		return host.MoveFailed
	}
	s.mapID, s.coord = req.m, req.c
	for _, w := range s.warps[s.mapID] {
		if w.Local == s.coord {
			s.mapID, s.coord = w.Dest, w.DestCoord
			break
		}
	}
	return host.MoveArrived
}

func (s *sim) CancelMove()         { s.pending = nil }
func (s *sim) Press(button string) { s.presses = append(s.presses, button) }
func (s *sim) AwaitingInput() bool { return s.awaiting }
func (s *sim) ResetHeldInputs()    { s.resets++ }

func grassGrid(w, h int, grass ...host.Coord) host.TileGrid {
	g := host.TileGrid{Width: w, Height: h, Cells: make([]host.Terrain, w*h)}
	for i := range g.Cells {
		g.Cells[i] = host.TerrainLand
	}
	for _, c := range grass {
		g.Cells[c.Y*w+c.X] = host.TerrainGrass
	}
	return g
}

func testRoute(t *testing.T) *route.Order {
	t.Helper()
	o, err := route.New([]route.Entry{
		{Map: mapA, Name: "ROUTE A"},
		{Map: mapB, Name: "ROUTE B"},
		{Map: mapC, Name: "ROUTE C"},
		{Map: mapD, Name: "ROUTE D"},
	})
	if err != nil {
		t.Fatalf("route.New: %v", err)
	}
	return o
}

func drive(t *testing.T, n *Navigator, s *sim, max int) StepResult {
	t.Helper()
	for i := 0; i < max; i++ {
		r := n.Step(Frame{Counter: uint64(i), Map: s.mapID, Coord: s.coord})
		if r != StepWorking {
			return r
		}
	}
	t.Fatalf("navigator did not settle in %d frames", max)
	return StepWorking
}

func TestBeginRejectsWhileBusy(t *testing.T) {
	s := &sim{mapID: mapB, coord: host.Coord{X: 1, Y: 1}}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	err := n.Begin(mapB, "ROUTE B", host.MethodGrass)
	if err == nil {
		t.Fatal("second Begin accepted while traveling")
	}
	if !strings.Contains(err.Error(), protocol.ErrNavBusy) {
		t.Fatalf("busy rejection = %q, want %s code", err, protocol.ErrNavBusy)
	}
}

func TestBeginTargetsNextRouteStop(t *testing.T) {
	s := &sim{mapID: mapB, coord: host.Coord{X: 1, Y: 1}}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := n.Current().Map; got != mapC {
		t.Fatalf("target = %s, want %s", got, mapC)
	}
}

func TestTileScanPicksMethodTerrain(t *testing.T) {
	grass := host.Coord{X: 3, Y: 4}
	s := &sim{
		mapID:      mapB,
		coord:      host.Coord{X: 1, Y: 1},
		grids:      map[host.MapID]host.TileGrid{mapC: grassGrid(8, 8, grass)},
		crossMapOK: true,
	}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// One grass tile means the scan has exactly one candidate.
	n.Step(Frame{Map: s.mapID, Coord: s.coord})
	if d := n.Current().Dest; d == nil || *d != grass {
		t.Fatalf("dest = %v, want %v", d, grass)
	}
}

func TestDirectTravelRefinesAndReleases(t *testing.T) {
	s := &sim{
		mapID:      mapB,
		coord:      host.Coord{X: 1, Y: 1},
		grids:      map[host.MapID]host.TileGrid{mapC: grassGrid(8, 8, host.Coord{X: 3, Y: 4})},
		crossMapOK: true,
	}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if r := drive(t, n, s, 200); r != StepArrived {
		t.Fatalf("result = %v, want StepArrived", r)
	}
	if !n.Idle() {
		t.Fatal("navigator not idle after arrival")
	}
	if s.mapID != mapC {
		t.Fatalf("player on %s, want %s", s.mapID, mapC)
	}
	if s.resets == 0 {
		t.Fatal("held inputs were not reset on release")
	}
}

func TestWarpTraversalWhenDirectFails(t *testing.T) {
	dest := host.Coord{X: 3, Y: 4}
	s := &sim{
		mapID: mapB,
		coord: host.Coord{X: 1, Y: 1},
		grids: map[host.MapID]host.TileGrid{
			mapB: grassGrid(8, 8),
			mapC: grassGrid(8, 8, dest),
		},
		warps: map[host.MapID][]host.Warp{
			mapB: {{Dest: mapC, DestCoord: host.Coord{X: 2, Y: 2}, Local: host.Coord{X: 5, Y: 5}}},
		},
	}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if r := drive(t, n, s, 400); r != StepArrived {
		t.Fatalf("result = %v, want StepArrived", r)
	}
	if s.mapID != mapC {
		t.Fatalf("player on %s, want %s", s.mapID, mapC)
	}
	// The warp tile itself must have been stepped on at some point.
	stepped := false
	for _, m := range s.moves {
		if m.m == mapB && m.c == (host.Coord{X: 5, Y: 5}) {
			stepped = true
		}
	}
	if !stepped {
		t.Fatal("warp tile was never stepped on")
	}
}

func TestRankWarpsPrefersForwardProgress(t *testing.T) {
	order := testRoute(t)
	player := host.Coord{X: 1, Y: 1}
	warps := []host.Warp{
		{Dest: mapA, Local: host.Coord{X: 2, Y: 2}}, // the map just departed
		{Dest: mapC, Local: host.Coord{X: 6, Y: 6}}, // forward distance 2 -> 1
	}
	got := rankWarps(warps, mapB, player, mapD, mapA, order)
	if len(got) != 1 || got[0].Dest != mapC {
		t.Fatalf("candidates = %+v, want single hop via %s", got, mapC)
	}
}

func TestRankWarpsDirectBeatsHopAndSortsByDistance(t *testing.T) {
	order := testRoute(t)
	player := host.Coord{X: 0, Y: 0}
	warps := []host.Warp{
		{Dest: mapC, Local: host.Coord{X: 1, Y: 1}},
		{Dest: mapD, Local: host.Coord{X: 9, Y: 9}},
		{Dest: mapD, Local: host.Coord{X: 2, Y: 2}},
	}
	got := rankWarps(warps, mapB, player, mapD, host.UnknownMap, order)
	if len(got) != 3 {
		t.Fatalf("candidates = %d, want 3", len(got))
	}
	if got[0].Dest != mapD || got[0].Local != (host.Coord{X: 2, Y: 2}) {
		t.Fatalf("first candidate = %+v, want nearest direct warp", got[0])
	}
	if got[1].Dest != mapD || got[2].Dest != mapC {
		t.Fatalf("order = %+v, want direct warps before the hop", got)
	}
}

func TestDialogDismissedBeforeMovement(t *testing.T) {
	s := &sim{mapID: mapB, coord: host.Coord{X: 1, Y: 1}, awaiting: true}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i := 0; i < 3; i++ {
		if r := n.Step(Frame{Map: s.mapID, Coord: s.coord}); r != StepWorking {
			t.Fatalf("step %d = %v, want StepWorking", i, r)
		}
	}
	if len(s.presses) != 3 {
		t.Fatalf("presses = %d, want 3", len(s.presses))
	}
	if len(s.moves) != 0 {
		t.Fatal("movement attempted while a dialog was open")
	}
}

func TestNoWarpsAbandonsAttempt(t *testing.T) {
	s := &sim{mapID: mapB, coord: host.Coord{X: 1, Y: 1}}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if r := drive(t, n, s, 200); r != StepAborted {
		t.Fatalf("result = %v, want StepAborted", r)
	}
	if !n.Idle() {
		t.Fatal("navigator not idle after abandoning")
	}
}

func TestExhaustedWarpBudgetProceedsAnyway(t *testing.T) {
	budgets := tuning.Defaults().Nav
	budgets.WarpCycles = 0
	budgets.RefineAttempts = 1
	s := &sim{mapID: mapB, coord: host.Coord{X: 1, Y: 1}}
	n := New(testRoute(t), s, s, s, budgets, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// Direct moves fail and no warp cycles are allowed; the navigator
	// must still finish (proceed anyway) instead of aborting.
	if r := drive(t, n, s, 200); r != StepArrived {
		t.Fatalf("result = %v, want StepArrived", r)
	}
}

func TestCancelReturnsToIdle(t *testing.T) {
	s := &sim{mapID: mapB, coord: host.Coord{X: 1, Y: 1}}
	n := New(testRoute(t), s, s, s, tuning.Defaults().Nav, nil)
	if err := n.Begin(mapB, "ROUTE B", host.MethodGrass); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	n.Cancel()
	if !n.Idle() {
		t.Fatal("navigator not idle after cancel")
	}
	if r := n.Step(Frame{Map: s.mapID, Coord: s.coord}); r != StepIdle {
		t.Fatalf("step after cancel = %v, want StepIdle", r)
	}
}
