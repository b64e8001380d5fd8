// Package dex resolves species identifiers to their evolutionary families.
// The species graph is a forest supplied as a data file; a family is the
// full connected set reachable from a species' root ancestor.
package dex

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Species is one node of the evolution forest.
type Species struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	EvolvesFrom int    `json:"evolves_from"` // -1 at a root
	Evolutions  []int  `json:"evolutions,omitempty"`
}

// Catalog is the loaded species forest plus variant configuration.
type Catalog struct {
	byIndex map[int]*Species
	byName  map[string]*Species

	// variantBase names the species whose individuals carry a per-variant
	// tag and form singleton families (UNOWN in Gen III).
	variantBase string
}

type catalogDoc struct {
	VariantBase string    `json:"variant_base"`
	Species     []Species `json:"species"`
}

// VariantAlphabet is the full set of variant tags, used when no variant has
// been observed yet on a map.
var VariantAlphabet = func() []string {
	out := make([]string, 0, 26)
	for c := 'A'; c <= 'Z'; c++ {
		out = append(out, string(c))
	}
	return out
}()

// New builds a catalog from a species list.
func New(species []Species, variantBase string) (*Catalog, error) {
	c := &Catalog{
		byIndex:     make(map[int]*Species, len(species)),
		byName:      make(map[string]*Species, len(species)),
		variantBase: strings.ToUpper(strings.TrimSpace(variantBase)),
	}
	for i := range species {
		sp := &species[i]
		sp.Name = strings.ToUpper(strings.TrimSpace(sp.Name))
		if sp.Name == "" {
			return nil, fmt.Errorf("species %d: empty name", sp.Index)
		}
		if _, dup := c.byIndex[sp.Index]; dup {
			return nil, fmt.Errorf("species %q: duplicate index %d", sp.Name, sp.Index)
		}
		if _, dup := c.byName[sp.Name]; dup {
			return nil, fmt.Errorf("species %q: duplicate name", sp.Name)
		}
		c.byIndex[sp.Index] = sp
		c.byName[sp.Name] = sp
	}
	return c, nil
}

// Load reads a catalog document from disk.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc catalogDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("species catalog: %w", err)
	}
	if len(doc.Species) == 0 {
		return nil, fmt.Errorf("species catalog: no species")
	}
	return New(doc.Species, doc.VariantBase)
}

// VariantBase returns the variant-bearing base species name ("" if none).
func (c *Catalog) VariantBase() string { return c.variantBase }

// IsVariant reports whether name is a tagged variant form.
func (c *Catalog) IsVariant(name string) bool {
	if c.variantBase == "" {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(name), c.variantBase+"-")
}

// VariantForm builds the tagged form name for a variant tag.
func (c *Catalog) VariantForm(tag string) string {
	return c.variantBase + "-" + strings.ToUpper(strings.TrimSpace(tag))
}

// VariantTag splits a tagged form into its tag, if name is one.
func (c *Catalog) VariantTag(name string) (string, bool) {
	if !c.IsVariant(name) {
		return "", false
	}
	return strings.ToUpper(name)[len(c.variantBase)+1:], true
}

// Lookup finds a species by (case-insensitive) name.
func (c *Catalog) Lookup(name string) (*Species, bool) {
	sp, ok := c.byName[strings.ToUpper(strings.TrimSpace(name))]
	return sp, ok
}

// LookupIndex finds a species by catalog index.
func (c *Catalog) LookupIndex(idx int) (*Species, bool) {
	sp, ok := c.byIndex[idx]
	return sp, ok
}

// Family returns the sorted names of the full evolutionary family of name:
// the root ancestor plus everything reachable from it. Tagged variant forms
// are singleton families. An unknown species is its own family, so learned
// data for species missing from the catalog still counts.
func (c *Catalog) Family(name string) []string {
	up := strings.ToUpper(strings.TrimSpace(name))
	if up == "" {
		return nil
	}
	if c.IsVariant(up) {
		return []string{up}
	}
	sp, ok := c.byName[up]
	if !ok {
		return []string{up}
	}

	root := sp
	for hops := 0; hops < 50; hops++ {
		if root.EvolvesFrom < 0 {
			break
		}
		prev, ok := c.byIndex[root.EvolvesFrom]
		if !ok {
			break
		}
		root = prev
	}

	seen := map[int]bool{}
	names := []string{}
	stack := []*Species{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[node.Index] {
			continue
		}
		seen[node.Index] = true
		names = append(names, node.Name)
		for _, evo := range node.Evolutions {
			if child, ok := c.byIndex[evo]; ok {
				stack = append(stack, child)
			}
		}
	}
	sort.Strings(names)
	return names
}

// DisplayName renders a species name for user-facing output.
func (c *Catalog) DisplayName(name string) string {
	up := strings.ToUpper(strings.TrimSpace(name))
	if tag, ok := c.VariantTag(up); ok {
		return titleCase(c.variantBase) + "-" + tag
	}
	return titleCase(up)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
