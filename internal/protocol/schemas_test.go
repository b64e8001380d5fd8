package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/highvoltaage/pokebot-prof-oak/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	welcomeSchema := compile("welcome.schema.json")
	frameSchema := compile("frame.schema.json")
	eventSchema := compile("event.schema.json")
	tableSchema := compile("table.schema.json")
	tilesSchema := compile("tiles.schema.json")
	warpsSchema := compile("warps.schema.json")
	shiniesSchema := compile("shinies.schema.json")

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "profile_id":"emerald-main",
	  "game_name":"POKEMON EMER",
	  "capabilities":["GRASS","SURF","ROD"]
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var frame any
	_ = json.Unmarshal([]byte(`{
	  "type":"FRAME",
	  "protocol_version":"1.0",
	  "counter":48213,
	  "map_group":0,
	  "map_number":16,
	  "map_name":"ROUTE 101",
	  "player_x":12,
	  "player_y":9,
	  "awaiting_input":false,
	  "in_battle":false,
	  "move_state":"IDLE"
	}`), &frame)
	validate(frameSchema, frame)

	var event any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "name":"CAUGHT",
	  "species":"WURMPLE",
	  "method":"GRASS",
	  "shiny":true,
	  "map_group":0,
	  "map_number":16
	}`), &event)
	validate(eventSchema, event)

	var table any
	_ = json.Unmarshal([]byte(`{
	  "type":"TABLE",
	  "protocol_version":"1.0",
	  "map_group":0,
	  "map_number":16,
	  "methods":{"GRASS":["POOCHYENA","WURMPLE","ZIGZAGOON"],"SURF":[]}
	}`), &table)
	validate(tableSchema, table)

	var tiles any
	_ = json.Unmarshal([]byte(`{
	  "type":"TILES",
	  "protocol_version":"1.0",
	  "map_group":0,
	  "map_number":16,
	  "width":2,
	  "height":2,
	  "cells":[1,2,2,1]
	}`), &tiles)
	validate(tilesSchema, tiles)

	var warps any
	_ = json.Unmarshal([]byte(`{
	  "type":"WARPS",
	  "protocol_version":"1.0",
	  "map_group":0,
	  "map_number":16,
	  "warps":[{"dest_group":0,"dest_number":17,"dest_x":4,"dest_y":30,"local_x":12,"local_y":0}]
	}`), &warps)
	validate(warpsSchema, warps)

	var shinies any
	_ = json.Unmarshal([]byte(`{
	  "type":"SHINIES",
	  "protocol_version":"1.0",
	  "storage":[{"species":"WURMPLE"},{"species":"UNOWN","variant_tag":"G"}],
	  "party":[],
	  "storage_ok":true,
	  "party_ok":true
	}`), &shinies)
	validate(shiniesSchema, shinies)
}

func TestValidatorRejectsMalformedFrame(t *testing.T) {
	v, err := protocol.LoadValidator(filepath.Join("..", "..", "schemas"))
	if err != nil {
		t.Fatalf("LoadValidator: %v", err)
	}
	good := []byte(`{"type":"FRAME","counter":1,"map_group":0,"map_number":16,"player_x":1,"player_y":2}`)
	if err := v.Validate(protocol.TypeFrame, good); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}
	bad := []byte(`{"type":"FRAME","counter":-4,"map_group":0}`)
	if err := v.Validate(protocol.TypeFrame, bad); err == nil {
		t.Fatal("malformed frame accepted")
	}
	// A nil validator accepts everything (validation disabled).
	var disabled *protocol.Validator
	if err := disabled.Validate(protocol.TypeFrame, bad); err != nil {
		t.Fatalf("disabled validator rejected: %v", err)
	}
}
