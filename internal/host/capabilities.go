package host

// Every capability getter returns an ok flag: false means the host cannot
// answer right now. Callers treat that as data-unavailable and degrade;
// they never block waiting for a capability.

// EncounterSource serves the authoritative wild-encounter table for a map.
// An empty inner slice is meaningful: the host is certain the method has no
// encounters on that map.
type EncounterSource interface {
	EffectiveTable(m MapID) (map[Method][]string, bool)
}

// TileGrid is a map's terrain matrix.
type TileGrid struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Cells  []Terrain `json:"cells"`
}

// At returns the terrain at (x, y), or TerrainNone out of bounds.
func (g TileGrid) At(x, y int) Terrain {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return TerrainNone
	}
	i := y*g.Width + x
	if i >= len(g.Cells) {
		return TerrainNone
	}
	return g.Cells[i]
}

// MapData exposes terrain and warp information.
type MapData interface {
	Grid(m MapID) (TileGrid, bool)
	TerrainAt(m MapID, c Coord) (Terrain, bool)
	// CurrentWarps lists the warp tiles on the map the player is on.
	CurrentWarps() ([]Warp, bool)
}

// Position reports where the controlled character is.
type Position interface {
	CurrentMap() (MapID, bool)
	PlayerCoord() (Coord, bool)
}

// MoveOptions tunes a single pathfinder request.
type MoveOptions struct {
	// Tolerance is the Manhattan distance at which the move counts as done.
	Tolerance int
	// AvoidEncounters asks the pathfinder to prefer non-encounter tiles.
	AvoidEncounters bool
}

// Mover drives the host's "walk to coordinate" capability. MoveTo begins a
// task; progress is polled via MoveState once per frame. Full tile-level
// pathfinding lives on the host side.
type Mover interface {
	MoveTo(m MapID, c Coord, opts MoveOptions) error
	MoveState() MoveState
	CancelMove()
}

// Input covers button presses and the modal-dialog signal.
type Input interface {
	Press(button string)
	AwaitingInput() bool
	ResetHeldInputs()
}

// Collections are the two shiny scan sources. A false ok means that source
// is unreadable right now; the other source remains usable.
type Collections interface {
	StorageShinies() ([]Individual, bool)
	PartyShinies() ([]Individual, bool)
}

// Control carries the quota engine's outward side effects.
type Control interface {
	Pause()
	SetManual(enabled bool)
	SetStatus(line string)
}

// Capabilities reports which encounter methods are usable right now.
type Capabilities interface {
	Usable() CapabilitySet
}

// Host is the full capability surface a canonical implementation provides.
type Host interface {
	EncounterSource
	MapData
	Position
	Mover
	Input
	Collections
	Control
	Capabilities
}
