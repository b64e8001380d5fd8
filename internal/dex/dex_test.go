package dex

import "testing"

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New([]Species{
		{Index: 265, Name: "WURMPLE", EvolvesFrom: -1, Evolutions: []int{266, 268}},
		{Index: 266, Name: "SILCOON", EvolvesFrom: 265, Evolutions: []int{267}},
		{Index: 267, Name: "BEAUTIFLY", EvolvesFrom: 266},
		{Index: 268, Name: "CASCOON", EvolvesFrom: 265, Evolutions: []int{269}},
		{Index: 269, Name: "DUSTOX", EvolvesFrom: 268},
		{Index: 129, Name: "MAGIKARP", EvolvesFrom: -1, Evolutions: []int{130}},
		{Index: 130, Name: "GYARADOS", EvolvesFrom: 129},
		{Index: 201, Name: "UNOWN", EvolvesFrom: -1},
	}, "UNOWN")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestFamily_ContainsSelfAndSymmetric(t *testing.T) {
	c := testCatalog(t)
	all := []string{"WURMPLE", "SILCOON", "BEAUTIFLY", "CASCOON", "DUSTOX", "MAGIKARP", "GYARADOS"}
	for _, name := range all {
		fam := c.Family(name)
		if !contains(fam, name) {
			t.Fatalf("family(%s) does not contain itself: %v", name, fam)
		}
		for _, other := range fam {
			back := c.Family(other)
			if !contains(back, name) {
				t.Fatalf("symmetry broken: %s in family(%s) but %s not in family(%s)", other, name, name, other)
			}
		}
	}
}

func TestFamily_FromMidChainClimbsToRoot(t *testing.T) {
	c := testCatalog(t)
	fam := c.Family("DUSTOX")
	want := []string{"BEAUTIFLY", "CASCOON", "DUSTOX", "SILCOON", "WURMPLE"}
	if len(fam) != len(want) {
		t.Fatalf("family(DUSTOX) = %v, want %v", fam, want)
	}
	for i := range want {
		if fam[i] != want[i] {
			t.Fatalf("family(DUSTOX)[%d] = %s, want %s", i, fam[i], want[i])
		}
	}
}

func TestFamily_VariantSingleton(t *testing.T) {
	c := testCatalog(t)
	fam := c.Family("UNOWN-G")
	if len(fam) != 1 || fam[0] != "UNOWN-G" {
		t.Fatalf("family(UNOWN-G) = %v, want singleton", fam)
	}
	if !c.IsVariant("UNOWN-G") {
		t.Fatalf("UNOWN-G should be a variant form")
	}
	tag, ok := c.VariantTag("UNOWN-G")
	if !ok || tag != "G" {
		t.Fatalf("VariantTag(UNOWN-G) = %q, %v", tag, ok)
	}
	if c.IsVariant("UNOWN") {
		t.Fatalf("plain UNOWN is not a variant form")
	}
}

func TestFamily_UnknownSpeciesIsOwnFamily(t *testing.T) {
	c := testCatalog(t)
	fam := c.Family("missingno")
	if len(fam) != 1 || fam[0] != "MISSINGNO" {
		t.Fatalf("family(missingno) = %v", fam)
	}
}

func TestVariantAlphabet(t *testing.T) {
	if len(VariantAlphabet) != 26 {
		t.Fatalf("alphabet size = %d", len(VariantAlphabet))
	}
	if VariantAlphabet[0] != "A" || VariantAlphabet[25] != "Z" {
		t.Fatalf("alphabet bounds: %v", VariantAlphabet)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
