// Package docstore reads and writes the engine's small JSON documents.
// Reads are permissive: a missing or malformed file yields the zero value.
// Writes replace the whole document atomically via a temp file + rename.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load decodes the document at path into v. It returns true only when the
// file existed and parsed; callers get their zero value otherwise.
func Load(path string, v any) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false
	}
	return true
}

// Save writes v as indented JSON, replacing any previous document.
func Save(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
