// Package runner owns the engine's single logical thread of control: one
// loop consuming host frames and events, driving the quota evaluator and
// the navigator. All engine state is mutated here and nowhere else.
package runner

import (
	"context"
	"log"
	"strings"
	"sync/atomic"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/encounters"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/nav"
	"github.com/highvoltaage/pokebot-prof-oak/internal/ownership"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/eventlog"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/indexdb"
	"github.com/highvoltaage/pokebot-prof-oak/internal/protocol"
	"github.com/highvoltaage/pokebot-prof-oak/internal/quota"
)

// ShinyRescanner lets the runner invalidate the host's shiny scan cache
// before a ledger rescan. The bridge implements it; fakes may not.
type ShinyRescanner interface {
	RequestShinyScan()
}

type Config struct {
	Frames <-chan protocol.Frame
	Events <-chan protocol.Event

	Host      host.Host
	Dex       *dex.Catalog
	Knowledge *encounters.KnowledgeBase
	Ledger    *ownership.Ledger
	Evaluator *quota.Evaluator
	Navigator *nav.Navigator

	Journal *eventlog.Writer
	Index   *indexdb.SQLiteIndex
	Logger  *log.Logger

	// FishingAsSurf folds rod encounters into the water quota group.
	FishingAsSurf bool
}

type Runner struct {
	cfg Config

	curMap    host.MapID
	curName   string
	curMethod host.Method
	inBattle  bool
	scanned   bool

	// Read from other goroutines by the metrics endpoint.
	frameCount atomic.Uint64
	eventCount atomic.Uint64

	lastState quota.State
	lastKey   string
}

func New(cfg Config) *Runner {
	return &Runner{
		cfg:       cfg,
		curMap:    host.UnknownMap,
		curMethod: host.MethodGrass,
	}
}

// Run blocks until ctx is done, dispatching frames and events in arrival
// order. Everything downstream assumes this is the only caller.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.cfg.Navigator.Cancel()
			return ctx.Err()
		case f, ok := <-r.cfg.Frames:
			if !ok {
				return nil
			}
			r.onFrame(f)
		case e, ok := <-r.cfg.Events:
			if !ok {
				return nil
			}
			r.onEvent(e)
		}
	}
}

// FramesSeen and EventsSeen are dispatch counters for the metrics endpoint.
func (r *Runner) FramesSeen() uint64 { return r.frameCount.Load() }
func (r *Runner) EventsSeen() uint64 { return r.eventCount.Load() }

func (r *Runner) onFrame(f protocol.Frame) {
	r.frameCount.Add(1)
	m := host.MapID{Group: f.MapGroup, Number: f.MapNumber}
	if m != r.curMap && m.Valid() {
		r.enterMap(m, f.MapName)
	}
	r.inBattle = f.InBattle

	if r.cfg.Navigator.Idle() {
		return
	}
	res := r.cfg.Navigator.Step(nav.Frame{
		Counter: f.Counter,
		Map:     m,
		MapName: f.MapName,
		Coord:   host.Coord{X: f.PlayerX, Y: f.PlayerY},
	})
	switch res {
	case nav.StepArrived:
		r.journal(eventlog.KindArrival, m, f.MapName, r.curMethod, "", false, "")
		r.recompute()
	case nav.StepAborted:
		r.logf("travel abandoned on %s, waiting for the next quota signal", f.MapName)
	}
}

func (r *Runner) onEvent(e protocol.Event) {
	r.eventCount.Add(1)
	m := host.MapID{Group: e.MapGroup, Number: e.MapNumber}
	switch e.Name {
	case protocol.EventBattleStarted:
		r.inBattle = true
		r.onEncounter(m, e)
	case protocol.EventBattleEnded:
		r.inBattle = false
		r.cfg.Evaluator.OnBattleEnded()
	case protocol.EventCaught:
		r.onCaught(m, e)
	case protocol.EventMapChanged:
		r.enterMap(m, "")
	case protocol.EventProfileLoaded:
		r.scanned = false
		r.rescan()
		r.recompute()
	case protocol.EventModeChanged:
		// Someone took over (manual play, another mode): stop driving.
		if e.Mode != "" && !strings.EqualFold(e.Mode, "prof_oak") {
			r.cfg.Navigator.Cancel()
		}
	}
}

func (r *Runner) onEncounter(m host.MapID, e protocol.Event) {
	if e.Method != "" {
		r.curMethod = host.NormalizeMethod(e.Method, r.cfg.FishingAsSurf)
	}
	species := r.canonicalSpecies(e.Species, e.Variant)
	if species != "" && m.Valid() {
		if e.Variant != "" {
			r.cfg.Knowledge.ObserveVariant(m, e.Variant)
		}
		r.cfg.Knowledge.Learn(m, r.curMethod, species)
		if r.cfg.Index != nil {
			r.cfg.Index.RecordEncounter(m, r.curName, r.curMethod, species, e.Shiny)
		}
		r.journal(eventlog.KindEncounter, m, r.curName, r.curMethod, species, e.Shiny, "")
	}
	// The first battle is the earliest point the host can serve a
	// collection scan, so a deferred initial rescan is retried here.
	if !r.scanned {
		r.rescan()
	}
	r.recompute()
}

func (r *Runner) onCaught(m host.MapID, e protocol.Event) {
	species := r.canonicalSpecies(e.Species, e.Variant)
	if species == "" {
		return
	}
	if e.Shiny {
		// Immediate local bump so the recompute below sees the catch
		// before the next full rescan lands.
		r.cfg.Ledger.Bump(species)
		if rs, ok := r.cfg.Host.(ShinyRescanner); ok {
			rs.RequestShinyScan()
		}
		r.scanned = false
	}
	if r.cfg.Index != nil {
		r.cfg.Index.RecordCatch(m, r.curName, r.curMethod, species, e.Shiny)
	}
	r.journal(eventlog.KindCatch, m, r.curName, r.curMethod, species, e.Shiny, "")
	r.recompute()
}

func (r *Runner) enterMap(m host.MapID, name string) {
	r.curMap = m
	if name != "" {
		r.curName = name
	}
	r.cfg.Knowledge.Reconcile(m)
	r.journal(eventlog.KindMapChange, m, r.curName, r.curMethod, "", false, "")
	r.recompute()
}

func (r *Runner) recompute() {
	if !r.curMap.Valid() {
		return
	}
	rep := r.cfg.Evaluator.Recompute(r.curMap, r.curName, r.curMethod, r.inBattle)
	if r.cfg.Index != nil && rep.Source != encounters.SourceNone {
		r.cfg.Index.RecordProgress(r.curMap, r.curName, r.curMethod, rep.Have, rep.Total, rep.State.String())
	}
	key := r.curMap.Key() + "/" + string(r.curMethod)
	if rep.State == quota.StateMet && (key != r.lastKey || r.lastState != quota.StateMet) {
		r.journal(eventlog.KindQuotaMet, r.curMap, r.curName, r.curMethod, "", false, rep.Status)
	}
	r.lastKey, r.lastState = key, rep.State
}

func (r *Runner) rescan() {
	if r.cfg.Ledger.Rescan(r.cfg.Host) {
		r.scanned = true
		return
	}
	r.logf("%s: shiny collections not ready, rescan deferred", protocol.ErrDataUnavailable)
}

// canonicalSpecies folds a variant tag into the lettered species form.
// Host casing varies, so the base comparison is case-folded.
func (r *Runner) canonicalSpecies(species, variant string) string {
	if species == "" {
		return ""
	}
	if variant != "" && strings.EqualFold(species, r.cfg.Dex.VariantBase()) {
		return r.cfg.Dex.VariantForm(variant)
	}
	return species
}

func (r *Runner) journal(kind string, m host.MapID, name string, method host.Method, species string, shiny bool, detail string) {
	if r.cfg.Journal == nil {
		return
	}
	if err := r.cfg.Journal.Log(kind, m, name, method, species, shiny, detail); err != nil {
		r.logf("journal write failed: %v", err)
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
