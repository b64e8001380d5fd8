// Package indexdb maintains a SQLite index of encounters, catches and
// quota progress. Writes are queued to a single writer goroutine so the
// engine's event loop never waits on the database; the JSONL journal
// remains the source of truth. Reads serve cmd/quotactl.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEncounter reqKind = iota + 1
	reqCatch
	reqProgress
)

type req struct {
	kind reqKind

	at      int64
	mapKey  string
	mapName string
	method  string
	species string
	shiny   bool

	have  int
	total int
	state string
}

// CatchRow is one recorded catch, newest first in queries.
type CatchRow struct {
	At      time.Time
	MapKey  string
	MapName string
	Method  string
	Species string
	Shiny   bool
}

// ProgressRow is the latest quota standing for one (map, method).
type ProgressRow struct {
	MapKey    string
	MapName   string
	Method    string
	Have      int
	Total     int
	State     string
	UpdatedAt time.Time
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Encounters arrive in bursts during long grass sessions.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS encounters (
			at INTEGER NOT NULL,
			map TEXT NOT NULL,
			map_name TEXT NOT NULL,
			method TEXT NOT NULL,
			species TEXT NOT NULL,
			shiny INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_encounters_map_method ON encounters(map, method);`,
		`CREATE TABLE IF NOT EXISTS catches (
			at INTEGER NOT NULL,
			map TEXT NOT NULL,
			map_name TEXT NOT NULL,
			method TEXT NOT NULL,
			species TEXT NOT NULL,
			shiny INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_catches_at ON catches(at);`,
		`CREATE TABLE IF NOT EXISTS quota_progress (
			map TEXT NOT NULL,
			map_name TEXT NOT NULL,
			method TEXT NOT NULL,
			have INTEGER NOT NULL,
			total INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (map, method)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) RecordEncounter(m host.MapID, mapName string, method host.Method, species string, shiny bool) {
	s.enqueue(req{
		kind:    reqEncounter,
		at:      time.Now().Unix(),
		mapKey:  m.Key(),
		mapName: mapName,
		method:  string(method),
		species: species,
		shiny:   shiny,
	})
}

func (s *SQLiteIndex) RecordCatch(m host.MapID, mapName string, method host.Method, species string, shiny bool) {
	s.enqueue(req{
		kind:    reqCatch,
		at:      time.Now().Unix(),
		mapKey:  m.Key(),
		mapName: mapName,
		method:  string(method),
		species: species,
		shiny:   shiny,
	})
}

func (s *SQLiteIndex) RecordProgress(m host.MapID, mapName string, method host.Method, have, total int, state string) {
	s.enqueue(req{
		kind:    reqProgress,
		at:      time.Now().Unix(),
		mapKey:  m.Key(),
		mapName: mapName,
		method:  string(method),
		have:    have,
		total:   total,
		state:   state,
	})
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the JSONL journal keeps the record.
	}
}

// RecentCatches returns up to limit catches, newest first.
func (s *SQLiteIndex) RecentCatches(ctx context.Context, limit int) ([]CatchRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, map, map_name, method, species, shiny FROM catches ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatchRow
	for rows.Next() {
		var r CatchRow
		var at int64
		var shiny int
		if err := rows.Scan(&at, &r.MapKey, &r.MapName, &r.Method, &r.Species, &shiny); err != nil {
			return nil, err
		}
		r.At = time.Unix(at, 0)
		r.Shiny = shiny != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Progress returns the latest quota standing per (map, method).
func (s *SQLiteIndex) Progress(ctx context.Context) ([]ProgressRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT map, map_name, method, have, total, state, updated_at FROM quota_progress ORDER BY map, method`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProgressRow
	for rows.Next() {
		var r ProgressRow
		var at int64
		if err := rows.Scan(&r.MapKey, &r.MapName, &r.Method, &r.Have, &r.Total, &r.State, &at); err != nil {
			return nil, err
		}
		r.UpdatedAt = time.Unix(at, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EncounterCount returns how many encounters were indexed for one
// (map, method), and how many of them were shiny.
func (s *SQLiteIndex) EncounterCount(ctx context.Context, m host.MapID, method host.Method) (total, shiny int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(shiny), 0) FROM encounters WHERE map = ? AND method = ?`,
		m.Key(), string(method)).Scan(&total, &shiny)
	return total, shiny, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEncounter, _ := s.db.Prepare(`INSERT INTO encounters(at,map,map_name,method,species,shiny) VALUES(?,?,?,?,?,?)`)
	insertCatch, _ := s.db.Prepare(`INSERT INTO catches(at,map,map_name,method,species,shiny) VALUES(?,?,?,?,?,?)`)
	upsertProgress, _ := s.db.Prepare(`INSERT OR REPLACE INTO quota_progress(map,map_name,method,have,total,state,updated_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertEncounter != nil {
			_ = insertEncounter.Close()
		}
		if insertCatch != nil {
			_ = insertCatch.Close()
		}
		if upsertProgress != nil {
			_ = upsertProgress.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		var err error
		switch r.kind {
		case reqEncounter:
			if insertEncounter != nil {
				_, err = tx.Stmt(insertEncounter).Exec(r.at, r.mapKey, r.mapName, r.method, r.species, boolInt(r.shiny))
			}
		case reqCatch:
			if insertCatch != nil {
				_, err = tx.Stmt(insertCatch).Exec(r.at, r.mapKey, r.mapName, r.method, r.species, boolInt(r.shiny))
			}
		case reqProgress:
			if upsertProgress != nil {
				_, err = tx.Stmt(upsertProgress).Exec(r.mapKey, r.mapName, r.method, r.have, r.total, r.state, r.at)
			}
		}
		if err != nil {
			rollback()
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
