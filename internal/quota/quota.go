// Package quota decides, per map and encounter method, whether the player
// still needs shiny individuals there, and hands the character off to the
// navigator (or pauses, or drops to manual) once a location is done.
package quota

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/encounters"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/ownership"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
	"github.com/highvoltaage/pokebot-prof-oak/internal/route"
)

// State is the evaluator's position after the latest recompute.
type State int

const (
	StateNoData State = iota
	StateDeficit
	StateMet
	StateHandoffDeferred
)

func (s State) String() string {
	switch s {
	case StateNoData:
		return "NO_DATA"
	case StateDeficit:
		return "DEFICIT"
	case StateMet:
		return "MET"
	case StateHandoffDeferred:
		return "HANDOFF_DEFERRED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Action is what happens on MET.
type Action int

const (
	ActionPause Action = iota
	ActionManual
	ActionNavigate
)

// ParseAction maps the tuning string onto an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pause":
		return ActionPause, nil
	case "manual":
		return ActionManual, nil
	case "", "navigate":
		return ActionNavigate, nil
	}
	return ActionPause, fmt.Errorf("quota: unknown met action %q", s)
}

// Entry is one family's requirement at the current location.
type Entry struct {
	Rep     string
	Members []string
	Need    int
}

// Deficit is one species still missing, with how many copies.
type Deficit struct {
	Species string
	Missing int
}

// Report is the outcome of a recompute.
type Report struct {
	State    State
	Source   encounters.Source
	Entries  []Entry
	Deficits []Deficit
	Have     int
	Total    int
	Status   string
}

// BacklogItem aggregates deficits over earlier route stops the player
// could still work with their current capabilities.
type BacklogItem struct {
	Map      host.MapID
	Name     string
	Method   host.Method
	Deficits []Deficit
}

// NavigateFunc starts travel toward the next quota-relevant map. It
// returns an error when the navigator is busy or cannot resolve a target.
type NavigateFunc func(from host.MapID, mapName string, method host.Method) error

type Config struct {
	Living    bool
	Action    Action
	AutoBlock bool
	BlockPath string
}

type pendingHandoff struct {
	Map    host.MapID
	Name   string
	Method host.Method
}

// Evaluator combines encounter knowledge, family grouping and the
// ownership ledger into per-location requirement state.
type Evaluator struct {
	cfg      Config
	dex      *dex.Catalog
	kb       *encounters.KnowledgeBase
	owned    *ownership.Ledger
	order    *route.Order
	control  host.Control
	navigate NavigateFunc
	logger   *log.Logger

	state   State
	pending *pendingHandoff
	blocked map[string]bool
}

type blockDoc struct {
	Blocked []string `json:"blocked"`
}

func New(cfg Config, cat *dex.Catalog, kb *encounters.KnowledgeBase, owned *ownership.Ledger, order *route.Order, control host.Control, navigate NavigateFunc, logger *log.Logger) *Evaluator {
	e := &Evaluator{
		cfg:      cfg,
		dex:      cat,
		kb:       kb,
		owned:    owned,
		order:    order,
		control:  control,
		navigate: navigate,
		logger:   logger,
		state:    StateNoData,
		blocked:  map[string]bool{},
	}
	if cfg.AutoBlock && cfg.BlockPath != "" {
		var doc blockDoc
		if docstore.Load(cfg.BlockPath, &doc) {
			for _, s := range doc.Blocked {
				e.blocked[s] = true
			}
		}
	}
	return e
}

func (e *Evaluator) State() State { return e.state }

// Recompute rebuilds requirement entries for (m, method) and drives the
// MET transition. Safe to call on every event that can change required
// species or owned counts; the computation is pure and cheap.
func (e *Evaluator) Recompute(m host.MapID, mapName string, method host.Method, inBattle bool) Report {
	rep := e.build(m, method)

	switch rep.State {
	case StateNoData:
		e.state = StateNoData
	case StateDeficit:
		e.state = StateDeficit
		e.logDeficits(m, mapName, method, rep.Deficits)
	case StateMet:
		e.updateCatchBlock(rep.Entries)
		if inBattle {
			e.state = StateHandoffDeferred
			if e.pending == nil {
				e.pending = &pendingHandoff{Map: m, Name: mapName, Method: method}
				e.logf("quota met on %s %s, handoff deferred until battle ends", mapName, method)
			}
		} else {
			e.state = StateMet
			e.dispatch(m, mapName, method)
		}
	}

	rep.State = e.state
	rep.Status = e.statusLine(rep, mapName, method)
	if e.control != nil {
		e.control.SetStatus(rep.Status)
	}
	return rep
}

// OnBattleEnded releases a deferred handoff, if any.
func (e *Evaluator) OnBattleEnded() {
	p := e.pending
	if p == nil {
		return
	}
	e.pending = nil
	e.state = StateMet
	e.dispatch(p.Map, p.Name, p.Method)
}

// Backlog walks the route from its start to the stop before current,
// reporting deficits for every method the player can actually use.
func (e *Evaluator) Backlog(current host.MapID, currentName string, caps host.CapabilitySet) []BacklogItem {
	idx, ok := e.order.Resolve(current, currentName)
	if !ok {
		e.logf("backlog: cannot place %s (%s) on the route, assuming start", current, currentName)
	}
	var out []BacklogItem
	for i := 0; i < idx; i++ {
		entry := e.order.Entry(i)
		if !entry.Map.Valid() {
			continue
		}
		for _, method := range host.Methods {
			if !caps.Has(method) {
				continue
			}
			rep := e.build(entry.Map, method)
			if rep.State != StateDeficit {
				continue
			}
			out = append(out, BacklogItem{
				Map:      entry.Map,
				Name:     entry.Name,
				Method:   method,
				Deficits: rep.Deficits,
			})
		}
	}
	return out
}

// build is the pure part: entries, coverage and deficits, no transitions.
func (e *Evaluator) build(m host.MapID, method host.Method) Report {
	required, source := e.kb.Required(m, method)
	if source == encounters.SourceNone {
		return Report{State: StateNoData, Source: source}
	}
	expanded := e.kb.ExpandVariants(m, required, e.cfg.Living)

	var entries []Entry
	seen := map[string]bool{}
	for _, sp := range expanded {
		members := e.dex.Family(sp)
		key := strings.Join(members, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		need := 1
		if e.cfg.Living {
			need = len(members)
		}
		entries = append(entries, Entry{Rep: sp, Members: members, Need: need})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rep < entries[j].Rep })

	rep := Report{Source: source, Entries: entries}
	for _, en := range entries {
		have, deficits := e.coverage(en)
		rep.Have += have
		rep.Total += en.Need
		rep.Deficits = append(rep.Deficits, deficits...)
	}
	switch {
	case len(entries) == 0:
		// Known-empty location (authoritative ∅): nothing lives here, so
		// there is no quota to meet and the met action must not fire.
		// Status still shows 0/0 to distinguish it from missing data.
		rep.State = StateNoData
	case len(rep.Deficits) > 0:
		rep.State = StateDeficit
	default:
		rep.State = StateMet
	}
	return rep
}

// coverage computes an entry's satisfied count and per-member shortfalls.
// In living mode each member contributes at most one copy, so a surplus
// of one member never offsets a missing sibling.
func (e *Evaluator) coverage(en Entry) (int, []Deficit) {
	if !e.cfg.Living {
		total := 0
		for _, member := range en.Members {
			total += e.owned.Count(member)
		}
		if total >= 1 {
			return 1, nil
		}
		return 0, []Deficit{{Species: en.Rep, Missing: 1}}
	}
	have := 0
	var deficits []Deficit
	for _, member := range en.Members {
		if e.owned.Count(member) > 0 {
			have++
		} else {
			deficits = append(deficits, Deficit{Species: member, Missing: 1})
		}
	}
	return have, deficits
}

func (e *Evaluator) dispatch(m host.MapID, mapName string, method host.Method) {
	switch e.cfg.Action {
	case ActionPause:
		e.logf("quota met on %s %s, pausing", mapName, method)
		if e.control != nil {
			e.control.Pause()
		}
	case ActionManual:
		e.logf("quota met on %s %s, switching to manual", mapName, method)
		if e.control != nil {
			e.control.SetManual(true)
		}
	case ActionNavigate:
		if e.navigate == nil {
			return
		}
		if err := e.navigate(m, mapName, method); err != nil {
			e.logf("quota met on %s %s but handoff declined: %v", mapName, method, err)
		}
	}
}

// updateCatchBlock records every owned member of a completed location so
// the host stops catching them. Opt-in, whole-document write.
func (e *Evaluator) updateCatchBlock(entries []Entry) {
	if !e.cfg.AutoBlock || e.cfg.BlockPath == "" {
		return
	}
	changed := false
	for _, en := range entries {
		for _, member := range en.Members {
			if e.owned.Count(member) > 0 && !e.blocked[member] {
				e.blocked[member] = true
				changed = true
			}
		}
	}
	if !changed {
		return
	}
	doc := blockDoc{Blocked: make([]string, 0, len(e.blocked))}
	for s := range e.blocked {
		doc.Blocked = append(doc.Blocked, s)
	}
	sort.Strings(doc.Blocked)
	if err := docstore.Save(e.cfg.BlockPath, doc); err != nil {
		e.logf("catch block write failed: %v", err)
	}
}

func (e *Evaluator) statusLine(rep Report, mapName string, method host.Method) string {
	if rep.Source == encounters.SourceNone {
		return fmt.Sprintf("?/? — %s %s (no data)", mapName, method)
	}
	mode := ""
	if e.cfg.Living {
		mode = " (Living)"
	}
	return fmt.Sprintf("%d/%d%s — %s %s", rep.Have, rep.Total, mode, mapName, method)
}

func (e *Evaluator) logDeficits(m host.MapID, mapName string, method host.Method, deficits []Deficit) {
	if e.logger == nil {
		return
	}
	parts := make([]string, 0, len(deficits))
	for _, d := range deficits {
		parts = append(parts, fmt.Sprintf("%s x%d", e.dex.DisplayName(d.Species), d.Missing))
	}
	e.logger.Printf("%s (%s) %s still needs: %s", mapName, m, method, strings.Join(parts, ", "))
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
