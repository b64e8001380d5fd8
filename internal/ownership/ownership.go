// Package ownership tracks how many shiny individuals of each species the
// player owns, refreshed by scanning the host's long-term storage and the
// active roster.
package ownership

import (
	"log"
	"strings"
	"time"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
)

// Ledger holds per-species shiny counts.
type Ledger struct {
	dex    *dex.Catalog
	logger *log.Logger
	path   string

	counts   map[string]int
	lastScan time.Time
}

// Snapshot is the persisted form of the ledger.
type Snapshot struct {
	LastScanUnix  int64          `json:"last_scan_unix"`
	SpeciesCounts map[string]int `json:"species_counts"`
}

// New builds a ledger, restoring the previous snapshot if one exists.
func New(catalog *dex.Catalog, path string, logger *log.Logger) *Ledger {
	l := &Ledger{
		dex:    catalog,
		logger: logger,
		path:   path,
		counts: map[string]int{},
	}
	var snap Snapshot
	if docstore.Load(path, &snap) && snap.SpeciesCounts != nil {
		l.counts = snap.SpeciesCounts
		l.lastScan = time.Unix(snap.LastScanUnix, 0)
	}
	return l
}

// Rescan rebuilds the counts from the host's two collections. A source that
// cannot be read right now is skipped without invalidating the other one;
// the rescan is only a no-op when neither source answers.
func (l *Ledger) Rescan(c host.Collections) bool {
	if c == nil {
		return false
	}
	storage, storageOK := c.StorageShinies()
	party, partyOK := c.PartyShinies()
	if !storageOK && !partyOK {
		l.logf("WARNING: neither storage nor roster is readable; keeping previous counts")
		return false
	}

	counts := map[string]int{}
	bump := func(ind host.Individual) {
		name := l.canonicalName(ind)
		if name == "" {
			return
		}
		counts[name]++
	}
	if storageOK {
		for _, ind := range storage {
			bump(ind)
		}
	} else {
		l.logf("WARNING: storage scan unavailable; roster only")
	}
	if partyOK {
		for _, ind := range party {
			bump(ind)
		}
	} else {
		l.logf("WARNING: roster scan unavailable; storage only")
	}

	l.counts = counts
	l.lastScan = time.Now()
	l.persist()
	l.logf("shiny scan: %d individuals across %d species", total(counts), len(counts))
	return true
}

// canonicalName folds an individual to its ledger key. When the base species
// is the variant-bearing one, the individual's variant tag selects the
// tagged form.
func (l *Ledger) canonicalName(ind host.Individual) string {
	name := strings.ToUpper(strings.TrimSpace(ind.Species))
	if name == "" {
		return ""
	}
	if l.dex != nil && name == l.dex.VariantBase() {
		if tag := strings.ToUpper(strings.TrimSpace(ind.VariantTag)); tag != "" {
			return l.dex.VariantForm(tag)
		}
	}
	return name
}

// Bump increments one species count in place, for immediate feedback right
// after a catch, ahead of the next full rescan.
func (l *Ledger) Bump(species string) {
	name := strings.ToUpper(strings.TrimSpace(species))
	if name == "" {
		return
	}
	l.counts[name]++
	l.persist()
}

// Count returns the owned shiny count for one species.
func (l *Ledger) Count(species string) int {
	return l.counts[strings.ToUpper(strings.TrimSpace(species))]
}

// Counts returns a copy of the full count map.
func (l *Ledger) Counts() map[string]int {
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// LastScan reports when the counts were last rebuilt from the host.
func (l *Ledger) LastScan() time.Time { return l.lastScan }

func (l *Ledger) persist() {
	if l.path == "" {
		return
	}
	snap := Snapshot{SpeciesCounts: l.counts}
	if !l.lastScan.IsZero() {
		snap.LastScanUnix = l.lastScan.Unix()
	}
	if err := docstore.Save(l.path, snap); err != nil {
		l.logf("WARNING: persist owned snapshot: %v", err)
	}
}

func (l *Ledger) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
