// Package encounters maintains what species can appear per map and method.
// Three tiers feed it: the host's authoritative table (highest priority, an
// explicitly empty table wins), a bundled static index, and an incrementally
// learned store persisted to disk.
package encounters

import (
	"log"
	"sort"
	"strings"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
)

// Source identifies which tier answered a Required query.
type Source int

const (
	// SourceNone: nothing is known yet; callers must not treat this as an
	// empty requirement.
	SourceNone Source = iota
	SourceAuthoritative
	// SourceEmptyAuthoritative: the host is certain there is nothing here.
	SourceEmptyAuthoritative
	SourceStatic
	SourceLearned
)

func (s Source) String() string {
	switch s {
	case SourceAuthoritative:
		return "AUTHORITATIVE"
	case SourceEmptyAuthoritative:
		return "EMPTY_AUTHORITATIVE"
	case SourceStatic:
		return "STATIC"
	case SourceLearned:
		return "LEARNED"
	default:
		return "NONE"
	}
}

// Config holds the knowledge base's tunables and document paths.
type Config struct {
	LearnedPath  string
	VariantsPath string

	// PruneLearned drops learned entries for methods the authoritative
	// table reports as empty.
	PruneLearned bool
}

// KnowledgeBase merges the three encounter tiers for quota evaluation.
type KnowledgeBase struct {
	cfg    Config
	dex    *dex.Catalog
	source host.EncounterSource
	logger *log.Logger

	// learned: map key -> method -> sorted species names.
	learned map[string]map[host.Method][]string
	// static: same shape, loaded once from the bundled index.
	static map[string]map[host.Method][]string
	// variants: map key -> sorted observed variant tags.
	variants map[string][]string
}

// New builds a knowledge base, loading the learned and variant documents.
func New(cfg Config, catalog *dex.Catalog, source host.EncounterSource, logger *log.Logger) *KnowledgeBase {
	kb := &KnowledgeBase{
		cfg:      cfg,
		dex:      catalog,
		source:   source,
		logger:   logger,
		learned:  map[string]map[host.Method][]string{},
		static:   map[string]map[host.Method][]string{},
		variants: map[string][]string{},
	}
	docstore.Load(cfg.LearnedPath, &kb.learned)
	docstore.Load(cfg.VariantsPath, &kb.variants)
	if kb.learned == nil {
		kb.learned = map[string]map[host.Method][]string{}
	}
	if kb.variants == nil {
		kb.variants = map[string][]string{}
	}
	return kb
}

// LoadStaticIndex installs the bundled per-map encounter index (the middle
// priority tier). Entries missing a well-formed map id are skipped.
func (kb *KnowledgeBase) LoadStaticIndex(doc StaticIndex) {
	for _, e := range doc.Maps {
		m := host.MapID{Group: e.Group, Number: e.Number}
		if !m.Valid() {
			continue
		}
		pools := map[host.Method][]string{}
		for raw, list := range e.Methods {
			method := host.NormalizeMethod(raw, false)
			pools[method] = mergeSorted(pools[method], normalizeAll(list))
		}
		kb.static[m.Key()] = pools
	}
}

// StaticIndex is the bundled encounter index document.
type StaticIndex struct {
	Maps []StaticMap `json:"maps"`
}

// StaticMap is one map's method pools in the bundled index.
type StaticMap struct {
	Group   int                 `json:"map_group"`
	Number  int                 `json:"map_number"`
	Methods map[string][]string `json:"methods"`
}

// Required returns the species set for (m, method) and which tier supplied
// it. Priority: authoritative (even when empty) > static > learned > none.
func (kb *KnowledgeBase) Required(m host.MapID, method host.Method) ([]string, Source) {
	if table, ok := kb.sourceTable(m); ok {
		set, present := table[method]
		if !present || len(set) == 0 {
			return nil, SourceEmptyAuthoritative
		}
		return normalizeAll(set), SourceAuthoritative
	}
	if pools, ok := kb.static[m.Key()]; ok {
		if set := pools[method]; len(set) > 0 {
			return append([]string(nil), set...), SourceStatic
		}
	}
	if per, ok := kb.learned[m.Key()]; ok {
		if set := per[method]; len(set) > 0 {
			return append([]string(nil), set...), SourceLearned
		}
	}
	return nil, SourceNone
}

func (kb *KnowledgeBase) sourceTable(m host.MapID) (map[host.Method][]string, bool) {
	if kb.source == nil {
		return nil, false
	}
	return kb.source.EffectiveTable(m)
}

// Learn records a species sighting for (m, method) in the learned store and
// persists it. The insert is idempotent. Sightings for methods the
// authoritative table already covers are ignored to avoid drift. A tagged
// variant form evicts the generic base from the same bucket.
func (kb *KnowledgeBase) Learn(m host.MapID, method host.Method, species string) bool {
	name := strings.ToUpper(strings.TrimSpace(species))
	if name == "" || !m.Valid() {
		return false
	}
	if _, ok := kb.sourceTable(m); ok {
		// The authoritative table already covers this map, empty methods
		// included; learning on top of it would only drift.
		return false
	}

	per := kb.learned[m.Key()]
	if per == nil {
		per = map[host.Method][]string{}
		kb.learned[m.Key()] = per
	}
	cur := per[method]
	if kb.dex != nil && kb.dex.IsVariant(name) {
		cur = without(cur, kb.dex.VariantBase())
	}
	if containsStr(cur, name) {
		per[method] = cur
		return false
	}
	per[method] = mergeSorted(cur, []string{name})
	kb.persistLearned()
	kb.logf("learned %s on %s (%s)", name, m, method)
	return true
}

// ObserveVariant records a variant tag seen on map m and persists the log.
func (kb *KnowledgeBase) ObserveVariant(m host.MapID, tag string) bool {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if tag == "" || !m.Valid() {
		return false
	}
	cur := kb.variants[m.Key()]
	if containsStr(cur, tag) {
		return false
	}
	kb.variants[m.Key()] = mergeSorted(cur, []string{tag})
	if kb.cfg.VariantsPath != "" {
		if err := docstore.Save(kb.cfg.VariantsPath, kb.variants); err != nil {
			kb.logf("WARNING: persist variants: %v", err)
		}
	}
	return true
}

// VariantTags returns the tags observed on m, or the full alphabet when
// none have been seen there yet.
func (kb *KnowledgeBase) VariantTags(m host.MapID) []string {
	if tags := kb.variants[m.Key()]; len(tags) > 0 {
		return append([]string(nil), tags...)
	}
	return append([]string(nil), dex.VariantAlphabet...)
}

// Reconcile merges every authoritative method pool for m into the learned
// store and, when configured, prunes learned entries for methods the
// authoritative table reports as empty. Stale learned data must not survive
// a map where live data says there is nothing to learn.
func (kb *KnowledgeBase) Reconcile(m host.MapID) {
	table, ok := kb.sourceTable(m)
	if !ok {
		return
	}
	per := kb.learned[m.Key()]
	if per == nil {
		per = map[host.Method][]string{}
	}
	changed := false

	for method, list := range table {
		if len(list) == 0 {
			continue
		}
		merged := mergeSorted(per[method], normalizeAll(list))
		if len(merged) != len(per[method]) {
			per[method] = merged
			changed = true
		}
	}
	if kb.cfg.PruneLearned {
		for _, method := range host.Methods {
			if len(table[method]) > 0 {
				continue
			}
			if len(per[method]) > 0 {
				delete(per, method)
				changed = true
			}
		}
	}

	if changed {
		if len(per) > 0 {
			kb.learned[m.Key()] = per
		} else {
			delete(kb.learned, m.Key())
		}
		kb.persistLearned()
		kb.logf("learned store reconciled for %s", m)
	}
}

// ExpandVariants replaces the generic variant base species with one entry
// per variant tag when living-dex mode is active. Tags observed on m win;
// with none observed the full alphabet is used. Outside living mode the
// set only loses the generic base when tagged forms are already present.
func (kb *KnowledgeBase) ExpandVariants(m host.MapID, species []string, living bool) []string {
	if kb.dex == nil || kb.dex.VariantBase() == "" {
		return species
	}
	base := kb.dex.VariantBase()
	hasBase := containsStr(species, base)
	hasTagged := false
	for _, s := range species {
		if kb.dex.IsVariant(s) {
			hasTagged = true
			break
		}
	}
	if !hasBase {
		return species
	}
	if hasTagged {
		return without(species, base)
	}
	if !living {
		return species
	}
	out := without(species, base)
	for _, tag := range kb.VariantTags(m) {
		out = mergeSorted(out, []string{kb.dex.VariantForm(tag)})
	}
	return out
}

// LearnedSnapshot returns a deep copy of the learned store, for handoff and
// inspection tooling.
func (kb *KnowledgeBase) LearnedSnapshot() map[string]map[host.Method][]string {
	out := make(map[string]map[host.Method][]string, len(kb.learned))
	for k, per := range kb.learned {
		cp := make(map[host.Method][]string, len(per))
		for method, list := range per {
			cp[method] = append([]string(nil), list...)
		}
		out[k] = cp
	}
	return out
}

func (kb *KnowledgeBase) persistLearned() {
	if kb.cfg.LearnedPath == "" {
		return
	}
	if err := docstore.Save(kb.cfg.LearnedPath, kb.learned); err != nil {
		kb.logf("WARNING: persist learned store: %v", err)
	}
}

func (kb *KnowledgeBase) logf(format string, args ...any) {
	if kb.logger != nil {
		kb.logger.Printf(format, args...)
	}
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		n := strings.ToUpper(strings.TrimSpace(s))
		if n != "" && !containsStr(out, n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func mergeSorted(cur []string, add []string) []string {
	out := append([]string(nil), cur...)
	for _, s := range add {
		if !containsStr(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func without(list []string, drop string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

func containsStr(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
