// Package protocol defines the JSON messages exchanged with the emulator
// host over the websocket bridge.
package protocol

import "encoding/json"

const Version = "1.0"

// Host -> engine message types.
const (
	TypeWelcome = "WELCOME"
	TypeFrame   = "FRAME"
	TypeEvent   = "EVENT"
	TypeTable   = "TABLE"
	TypeTiles   = "TILES"
	TypeWarps   = "WARPS"
	TypeShinies = "SHINIES"
)

// Engine -> host message types.
const (
	TypeQuery       = "QUERY"
	TypeMoveTo      = "MOVE_TO"
	TypePress       = "PRESS"
	TypeResetInputs = "RESET_INPUTS"
	TypePause       = "PAUSE"
	TypeManual      = "MANUAL"
	TypeStatus      = "STATUS"
)

// Event names carried in EVENT messages.
const (
	EventBattleStarted = "BATTLE_STARTED"
	EventBattleEnded   = "BATTLE_ENDED"
	EventCaught        = "CAUGHT"
	EventMapChanged    = "MAP_CHANGED"
	EventModeChanged   = "MODE_CHANGED"
	EventProfileLoaded = "PROFILE_LOADED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Welcome opens a session: profile identity plus the method capability set.
type Welcome struct {
	BaseMessage
	ProfileID    string   `json:"profile_id"`
	GameName     string   `json:"game_name,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Frame is the per-tick snapshot the host pushes every emulator frame.
type Frame struct {
	BaseMessage
	Counter       uint64 `json:"counter"`
	MapGroup      int    `json:"map_group"`
	MapNumber     int    `json:"map_number"`
	MapName       string `json:"map_name,omitempty"`
	PlayerX       int    `json:"player_x"`
	PlayerY       int    `json:"player_y"`
	AwaitingInput bool   `json:"awaiting_input"`
	InBattle      bool   `json:"in_battle"`
	MoveState     string `json:"move_state,omitempty"`
}

// Event is a discrete game-state transition.
type Event struct {
	BaseMessage
	Name      string `json:"name"`
	Species   string `json:"species,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Method    string `json:"method,omitempty"`
	Shiny     bool   `json:"shiny,omitempty"`
	MapGroup  int    `json:"map_group"`
	MapNumber int    `json:"map_number"`
	Mode      string `json:"mode,omitempty"`
}

// Table answers a table QUERY: the effective encounter table for a map.
// An empty species list for a method is meaningful (known-empty).
type Table struct {
	BaseMessage
	MapGroup  int                 `json:"map_group"`
	MapNumber int                 `json:"map_number"`
	Methods   map[string][]string `json:"methods"`
}

// Tiles answers a tiles QUERY: a map's terrain grid, row-major.
type Tiles struct {
	BaseMessage
	MapGroup  int   `json:"map_group"`
	MapNumber int   `json:"map_number"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Cells     []int `json:"cells"`
}

// WireWarp is one warp tile in a WARPS message.
type WireWarp struct {
	DestGroup  int `json:"dest_group"`
	DestNumber int `json:"dest_number"`
	DestX      int `json:"dest_x"`
	DestY      int `json:"dest_y"`
	LocalX     int `json:"local_x"`
	LocalY     int `json:"local_y"`
}

// Warps answers a warps QUERY for the map the player is on.
type Warps struct {
	BaseMessage
	MapGroup  int        `json:"map_group"`
	MapNumber int        `json:"map_number"`
	Warps     []WireWarp `json:"warps"`
}

// WireIndividual is one shiny creature in a SHINIES scan result.
type WireIndividual struct {
	Species    string `json:"species"`
	VariantTag string `json:"variant_tag,omitempty"`
}

// Shinies answers a shinies QUERY. The per-source ok flags distinguish
// "empty" from "unreadable right now".
type Shinies struct {
	BaseMessage
	Storage   []WireIndividual `json:"storage"`
	Party     []WireIndividual `json:"party"`
	StorageOK bool             `json:"storage_ok"`
	PartyOK   bool             `json:"party_ok"`
}

// Query asks the host for one of its data capabilities.
type Query struct {
	BaseMessage
	What      string `json:"what"` // "table" | "tiles" | "warps" | "shinies"
	MapGroup  int    `json:"map_group,omitempty"`
	MapNumber int    `json:"map_number,omitempty"`
}

// MoveTo starts (or cancels) a host-side pathfinder task.
type MoveTo struct {
	BaseMessage
	MapGroup        int  `json:"map_group"`
	MapNumber       int  `json:"map_number"`
	X               int  `json:"x"`
	Y               int  `json:"y"`
	Tolerance       int  `json:"tolerance,omitempty"`
	AvoidEncounters bool `json:"avoid_encounters,omitempty"`
	Cancel          bool `json:"cancel,omitempty"`
}

// Press taps one button.
type Press struct {
	BaseMessage
	Button string `json:"button"`
}

// Manual toggles manual control on the host.
type Manual struct {
	BaseMessage
	Enabled bool `json:"enabled"`
}

// Status pushes the progress line shown by the host UI.
type Status struct {
	BaseMessage
	Line string `json:"line"`
}

// Base builds the envelope for an outgoing message.
func Base(msgType string) BaseMessage {
	return BaseMessage{Type: msgType, ProtocolVersion: Version}
}
