// Package host defines the capability surface the engine consumes from the
// emulator host. The core only ever talks to these interfaces; one canonical
// implementation per host is selected at startup (see internal/host/bridge).
package host

import (
	"strconv"
	"strings"
)

// MapID identifies a map by its (group, number) pair.
type MapID struct {
	Group  int `json:"map_group"`
	Number int `json:"map_number"`
}

// Valid reports whether the identifier is well-formed.
func (m MapID) Valid() bool { return m.Group >= 0 && m.Number >= 0 }

func (m MapID) String() string {
	if !m.Valid() {
		return "MAP_?"
	}
	return "MAP_" + strconv.Itoa(m.Group) + "_" + strconv.Itoa(m.Number)
}

// Key returns the document-store key for this map ("g:n").
func (m MapID) Key() string { return strconv.Itoa(m.Group) + ":" + strconv.Itoa(m.Number) }

// ParseMapKey parses a "g:n" key back into a MapID.
func ParseMapKey(s string) (MapID, bool) {
	g, n, ok := strings.Cut(s, ":")
	if !ok {
		return UnknownMap, false
	}
	gi, err1 := strconv.Atoi(strings.TrimSpace(g))
	ni, err2 := strconv.Atoi(strings.TrimSpace(n))
	if err1 != nil || err2 != nil {
		return UnknownMap, false
	}
	return MapID{Group: gi, Number: ni}, true
}

// UnknownMap is the zero-information map identifier.
var UnknownMap = MapID{Group: -1, Number: -1}

// Coord is a local tile coordinate on a map.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Manhattan returns the Manhattan distance between two coordinates.
func Manhattan(a, b Coord) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// OrthogonalNeighbors returns the four orthogonal neighbors of c.
func OrthogonalNeighbors(c Coord) [4]Coord {
	return [4]Coord{
		{X: c.X, Y: c.Y - 1},
		{X: c.X, Y: c.Y + 1},
		{X: c.X - 1, Y: c.Y},
		{X: c.X + 1, Y: c.Y},
	}
}

// Method is a normalized encounter method tag.
type Method string

const (
	MethodGrass     Method = "GRASS"
	MethodSurf      Method = "SURF"
	MethodRod       Method = "ROD"
	MethodRockSmash Method = "ROCK_SMASH"
	MethodStatic    Method = "STATIC"
	MethodSafari    Method = "SAFARI"
)

// Methods lists every wild-encounter method in canonical order.
var Methods = []Method{MethodGrass, MethodSurf, MethodRod, MethodRockSmash}

// NormalizeMethod folds the many raw method spellings hosts emit into one
// canonical tag. fishingAsSurf groups rod encounters with SURF.
// Unrecognized input defaults to GRASS, matching overworld walking modes.
func NormalizeMethod(raw string, fishingAsSurf bool) Method {
	n := strings.ToUpper(strings.TrimSpace(raw))
	switch n {
	case "GRASS", "LAND", "WALKING", "OVERWORLD", "SPIN":
		return MethodGrass
	case "SURF", "SURFING", "WATER":
		return MethodSurf
	case "FISH", "FISHING", "ROD", "OLD_ROD", "GOOD_ROD", "SUPER_ROD":
		if fishingAsSurf {
			return MethodSurf
		}
		return MethodRod
	case "ROCK_SMASH", "ROCKSMASH", "SMASH":
		return MethodRockSmash
	case "STARTER", "GIFT", "STATIC", "GIFT_POKEMON", "EVENT":
		return MethodStatic
	case "SAFARI":
		return MethodSafari
	}
	switch {
	case strings.Contains(n, "SPIN"):
		return MethodGrass
	case strings.Contains(n, "FISH"), strings.Contains(n, "ROD"):
		if fishingAsSurf {
			return MethodSurf
		}
		return MethodRod
	case strings.Contains(n, "SURF"), strings.Contains(n, "WATER"):
		return MethodSurf
	case strings.Contains(n, "ROCK") && strings.Contains(n, "SMASH"):
		return MethodRockSmash
	}
	return MethodGrass
}

// Terrain is a coarse tile category used for destination selection.
type Terrain int

const (
	TerrainNone Terrain = iota
	TerrainLand
	TerrainGrass
	TerrainWater
	TerrainRock
	TerrainBlocked
)

// Terrain maps a method to the tile category its encounters occur on.
func (m Method) Terrain() Terrain {
	switch m {
	case MethodSurf, MethodRod:
		return TerrainWater
	case MethodRockSmash:
		return TerrainRock
	default:
		return TerrainGrass
	}
}

// Matches reports whether a tile of terrain t can host method encounters.
// Land tiles are accepted for grass methods: many maps expose walkable
// encounter tiles that are not tagged as tall grass.
func (m Method) Matches(t Terrain) bool {
	want := m.Terrain()
	if t == want {
		return true
	}
	return want == TerrainGrass && t == TerrainLand
}

// Warp describes a map-transition tile.
type Warp struct {
	Dest      MapID `json:"dest"`
	DestCoord Coord `json:"dest_coord"`
	Local     Coord `json:"local"`
}

// MoveState is the host pathfinder's task state, polled every frame.
type MoveState int

const (
	MoveIdle MoveState = iota
	MoveActive
	MoveArrived
	MoveFailed
)

func (s MoveState) String() string {
	switch s {
	case MoveActive:
		return "ACTIVE"
	case MoveArrived:
		return "ARRIVED"
	case MoveFailed:
		return "FAILED"
	default:
		return "IDLE"
	}
}

// Individual is one creature read from a host collection scan.
type Individual struct {
	Species    string `json:"species"`
	VariantTag string `json:"variant_tag,omitempty"`
}

// CapabilitySet is the set of encounter methods the player can use right now
// (badges, key items and party moves collapse to this on the host side).
type CapabilitySet map[Method]bool

// Has reports whether method m is usable. A nil set permits only GRASS,
// the one method that needs no equipment.
func (c CapabilitySet) Has(m Method) bool {
	if c == nil {
		return m == MethodGrass
	}
	return c[m]
}
