package protocol

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks inbound messages against their JSON schemas. A nil
// Validator accepts everything, so validation degrades cleanly when the
// schema directory is missing.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// inboundTypes maps message type to schema file basename.
var inboundTypes = map[string]string{
	TypeWelcome: "welcome.schema.json",
	TypeFrame:   "frame.schema.json",
	TypeEvent:   "event.schema.json",
	TypeTable:   "table.schema.json",
	TypeTiles:   "tiles.schema.json",
	TypeWarps:   "warps.schema.json",
	TypeShinies: "shinies.schema.json",
}

// LoadValidator compiles every inbound schema from dir.
func LoadValidator(dir string) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(inboundTypes))}
	for msgType, name := range inboundTypes {
		s, err := jsonschema.Compile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[msgType] = s
	}
	return v, nil
}

// Validate checks one raw message against the schema for its type.
// Unknown types pass through; the dispatcher decides what to drop.
func (v *Validator) Validate(msgType string, raw []byte) error {
	if v == nil {
		return nil
	}
	s, ok := v.schemas[msgType]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %s", ErrSchemaInvalid, firstLine(err.Error()))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
