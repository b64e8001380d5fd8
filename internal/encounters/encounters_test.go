package encounters

import (
	"path/filepath"
	"testing"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
)

type fakeSource struct {
	tables map[string]map[host.Method][]string
}

func (f *fakeSource) EffectiveTable(m host.MapID) (map[host.Method][]string, bool) {
	t, ok := f.tables[m.Key()]
	return t, ok
}

func testDex(t *testing.T) *dex.Catalog {
	t.Helper()
	c, err := dex.New([]dex.Species{
		{Index: 129, Name: "MAGIKARP", EvolvesFrom: -1, Evolutions: []int{130}},
		{Index: 130, Name: "GYARADOS", EvolvesFrom: 129},
		{Index: 201, Name: "UNOWN", EvolvesFrom: -1},
		{Index: 263, Name: "ZIGZAGOON", EvolvesFrom: -1},
	}, "UNOWN")
	if err != nil {
		t.Fatalf("dex.New: %v", err)
	}
	return c
}

func newKB(t *testing.T, src host.EncounterSource) *KnowledgeBase {
	t.Helper()
	dir := t.TempDir()
	return New(Config{
		LearnedPath:  filepath.Join(dir, "learned.json"),
		VariantsPath: filepath.Join(dir, "variants.json"),
		PruneLearned: true,
	}, testDex(t), src, nil)
}

var mapX = host.MapID{Group: 0, Number: 10}

func TestRequired_EmptyAuthoritativeBeatsLearned(t *testing.T) {
	src := &fakeSource{tables: map[string]map[host.Method][]string{
		mapX.Key(): {host.MethodGrass: {"ZIGZAGOON"}},
	}}
	kb := newKB(t, nil) // learn first with no authoritative source
	if !kb.Learn(mapX, host.MethodSurf, "MAGIKARP") {
		t.Fatalf("learn should insert")
	}
	kb.source = src

	set, source := kb.Required(mapX, host.MethodSurf)
	if len(set) != 0 {
		t.Fatalf("required = %v, want empty", set)
	}
	if source != SourceEmptyAuthoritative {
		t.Fatalf("source = %v, want EMPTY_AUTHORITATIVE", source)
	}
}

func TestRequired_PriorityOrder(t *testing.T) {
	kb := newKB(t, nil)
	m := host.MapID{Group: 1, Number: 2}

	if set, src := kb.Required(m, host.MethodGrass); src != SourceNone || set != nil {
		t.Fatalf("empty kb: got %v / %v", set, src)
	}

	kb.Learn(m, host.MethodGrass, "zigzagoon")
	if set, src := kb.Required(m, host.MethodGrass); src != SourceLearned || len(set) != 1 || set[0] != "ZIGZAGOON" {
		t.Fatalf("learned tier: got %v / %v", set, src)
	}

	kb.LoadStaticIndex(StaticIndex{Maps: []StaticMap{
		{Group: 1, Number: 2, Methods: map[string][]string{"LAND": {"Poochyena"}}},
	}})
	if set, src := kb.Required(m, host.MethodGrass); src != SourceStatic || len(set) != 1 || set[0] != "POOCHYENA" {
		t.Fatalf("static tier: got %v / %v", set, src)
	}

	kb.source = &fakeSource{tables: map[string]map[host.Method][]string{
		m.Key(): {host.MethodGrass: {"WURMPLE"}},
	}}
	if set, src := kb.Required(m, host.MethodGrass); src != SourceAuthoritative || len(set) != 1 || set[0] != "WURMPLE" {
		t.Fatalf("authoritative tier: got %v / %v", set, src)
	}
}

func TestLearn_IdempotentAndPersisted(t *testing.T) {
	kb := newKB(t, nil)
	m := host.MapID{Group: 3, Number: 4}

	if !kb.Learn(m, host.MethodRod, "MAGIKARP") {
		t.Fatalf("first learn should report change")
	}
	if kb.Learn(m, host.MethodRod, "MAGIKARP") {
		t.Fatalf("second learn must be a no-op")
	}
	set, _ := kb.Required(m, host.MethodRod)
	if len(set) != 1 {
		t.Fatalf("learned store grew on duplicate: %v", set)
	}

	var onDisk map[string]map[host.Method][]string
	if !docstore.Load(kb.cfg.LearnedPath, &onDisk) {
		t.Fatalf("learned store was not persisted")
	}
	if got := onDisk[m.Key()][host.MethodRod]; len(got) != 1 || got[0] != "MAGIKARP" {
		t.Fatalf("persisted store = %v", onDisk)
	}
}

func TestLearn_SkippedWhenAuthoritativeCovers(t *testing.T) {
	m := host.MapID{Group: 3, Number: 4}
	kb := newKB(t, &fakeSource{tables: map[string]map[host.Method][]string{
		m.Key(): {host.MethodGrass: {"ZIGZAGOON"}},
	}})
	if kb.Learn(m, host.MethodGrass, "POOCHYENA") {
		t.Fatalf("learn must no-op when the authoritative table covers the map")
	}
}

func TestLearn_VariantEvictsGenericBase(t *testing.T) {
	kb := newKB(t, nil)
	m := host.MapID{Group: 5, Number: 1}
	kb.Learn(m, host.MethodGrass, "UNOWN")
	kb.Learn(m, host.MethodGrass, "UNOWN-G")
	set, _ := kb.Required(m, host.MethodGrass)
	if len(set) != 1 || set[0] != "UNOWN-G" {
		t.Fatalf("lettered form should evict generic base: %v", set)
	}
}

func TestReconcile_MergesAndPrunes(t *testing.T) {
	m := host.MapID{Group: 6, Number: 0}
	kb := newKB(t, nil)
	kb.Learn(m, host.MethodSurf, "MAGIKARP") // will be pruned: authoritative says SURF is empty
	kb.Learn(m, host.MethodGrass, "POOCHYENA")

	kb.source = &fakeSource{tables: map[string]map[host.Method][]string{
		m.Key(): {
			host.MethodGrass: {"ZIGZAGOON", "POOCHYENA"},
			host.MethodSurf:  {},
		},
	}}
	kb.Reconcile(m)

	if got := kb.learned[m.Key()][host.MethodSurf]; len(got) != 0 {
		t.Fatalf("stale SURF entries survived reconcile: %v", got)
	}
	got := kb.learned[m.Key()][host.MethodGrass]
	if len(got) != 2 || got[0] != "POOCHYENA" || got[1] != "ZIGZAGOON" {
		t.Fatalf("merge result = %v", got)
	}
}

func TestExpandVariants(t *testing.T) {
	kb := newKB(t, nil)
	m := host.MapID{Group: 7, Number: 7}

	// No observations: full alphabet in living mode.
	out := kb.ExpandVariants(m, []string{"UNOWN"}, true)
	if len(out) != 26 {
		t.Fatalf("expected full alphabet, got %d entries", len(out))
	}

	kb.ObserveVariant(m, "G")
	kb.ObserveVariant(m, "a")
	out = kb.ExpandVariants(m, []string{"UNOWN"}, true)
	if len(out) != 2 || out[0] != "UNOWN-A" || out[1] != "UNOWN-G" {
		t.Fatalf("observed-tag expansion = %v", out)
	}

	// Standard mode keeps the generic base.
	out = kb.ExpandVariants(m, []string{"UNOWN"}, false)
	if len(out) != 1 || out[0] != "UNOWN" {
		t.Fatalf("standard mode should not expand: %v", out)
	}

	// Tagged forms already present: generic base is dropped either way.
	out = kb.ExpandVariants(m, []string{"UNOWN", "UNOWN-B"}, false)
	if len(out) != 1 || out[0] != "UNOWN-B" {
		t.Fatalf("generic base should be dropped: %v", out)
	}
}
