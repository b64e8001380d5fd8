package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
)

func TestSQLiteIndex_RecordAndQuery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	m := host.MapID{Group: 0, Number: 16}
	idx.RecordEncounter(m, "ROUTE 101", host.MethodGrass, "WURMPLE", false)
	idx.RecordEncounter(m, "ROUTE 101", host.MethodGrass, "POOCHYENA", true)
	idx.RecordCatch(m, "ROUTE 101", host.MethodGrass, "POOCHYENA", true)
	idx.RecordProgress(m, "ROUTE 101", host.MethodGrass, 1, 3, "DEFICIT")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	total, shiny, err := idx.EncounterCount(ctx, m, host.MethodGrass)
	if err != nil {
		t.Fatalf("EncounterCount: %v", err)
	}
	if total != 2 || shiny != 1 {
		t.Fatalf("encounters = (%d, %d), want (2, 1)", total, shiny)
	}

	catches, err := idx.RecentCatches(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCatches: %v", err)
	}
	if len(catches) != 1 || catches[0].Species != "POOCHYENA" || !catches[0].Shiny {
		t.Fatalf("catches = %+v", catches)
	}

	progress, err := idx.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if len(progress) != 1 || progress[0].Have != 1 || progress[0].Total != 3 || progress[0].State != "DEFICIT" {
		t.Fatalf("progress = %+v", progress)
	}
}

func TestSQLiteIndex_ProgressUpsertsByMapMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	m := host.MapID{Group: 0, Number: 17}
	idx.RecordProgress(m, "ROUTE 102", host.MethodSurf, 0, 2, "DEFICIT")
	idx.RecordProgress(m, "ROUTE 102", host.MethodSurf, 2, 2, "MET")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	progress, err := idx.Progress(context.Background())
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if len(progress) != 1 || progress[0].State != "MET" || progress[0].Have != 2 {
		t.Fatalf("progress = %+v, want single MET row", progress)
	}
}
