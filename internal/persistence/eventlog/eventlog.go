// Package eventlog journals engine activity as compressed JSONL, one file
// per hour.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
)

// Entry is one journal line. Fields are optional except Kind and At.
type Entry struct {
	At      int64  `json:"at"`
	Kind    string `json:"kind"`
	Map     string `json:"map,omitempty"`
	MapName string `json:"map_name,omitempty"`
	Method  string `json:"method,omitempty"`
	Species string `json:"species,omitempty"`
	Shiny   bool   `json:"shiny,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Journal entry kinds.
const (
	KindEncounter = "ENCOUNTER"
	KindCatch     = "CATCH"
	KindQuotaMet  = "QUOTA_MET"
	KindHandoff   = "HANDOFF"
	KindArrival   = "ARRIVAL"
	KindMapChange = "MAP_CHANGE"
)

type Writer struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func New(dataDir string) *Writer {
	return &Writer{
		baseDir: filepath.Join(dataDir, "events"),
		prefix:  "events",
	}
}

// Log appends one entry, stamping the time.
func (w *Writer) Log(kind string, m host.MapID, mapName string, method host.Method, species string, shiny bool, detail string) error {
	return w.write(Entry{
		At:      time.Now().Unix(),
		Kind:    kind,
		Map:     m.Key(),
		MapName: mapName,
		Method:  string(method),
		Species: species,
		Shiny:   shiny,
		Detail:  detail,
	})
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}
