// Package route holds the canonical, cyclic ordering of maps the automation
// traverses, and answers "where am I" and "how far forward" queries on it.
package route

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
)

// Entry is one stop on the route.
type Entry struct {
	Map     host.MapID  `json:"map"`
	Name    string      `json:"name"`
	Aliases []string    `json:"aliases,omitempty"`
	Dest    *host.Coord `json:"dest,omitempty"`
}

// Order is the cyclic route sequence.
type Order struct {
	entries []Entry
}

// fuzzyMaxDistance bounds alias matching; anything farther is no match.
const fuzzyMaxDistance = 2

type orderDoc struct {
	Order []Entry `json:"order"`
}

// New builds an Order, requiring at least one resolvable entry.
func New(entries []Entry) (*Order, error) {
	resolvable := false
	for i := range entries {
		entries[i].Name = strings.ToUpper(strings.TrimSpace(entries[i].Name))
		for j := range entries[i].Aliases {
			entries[i].Aliases[j] = strings.ToUpper(strings.TrimSpace(entries[i].Aliases[j]))
		}
		if entries[i].Map.Valid() {
			resolvable = true
		}
	}
	if !resolvable {
		return nil, fmt.Errorf("route order: no entry has a well-formed map id")
	}
	return &Order{entries: entries}, nil
}

// Load reads the route-order document. The document is read permissively,
// but an order with nothing resolvable in it is still an error: the
// navigator has nowhere to go.
func Load(path string) (*Order, error) {
	var doc orderDoc
	if !docstore.Load(path, &doc) {
		// Accept a bare list as well as the {"order": [...]} wrapper.
		var bare []Entry
		if !docstore.Load(path, &bare) {
			return nil, fmt.Errorf("route order: cannot read %s", path)
		}
		doc.Order = bare
	}
	return New(doc.Order)
}

// Len returns the number of entries.
func (o *Order) Len() int { return len(o.entries) }

// Entry returns the i-th entry (i taken modulo length).
func (o *Order) Entry(i int) Entry {
	return o.entries[mod(i, len(o.entries))]
}

// Entries returns a copy of the full sequence.
func (o *Order) Entries() []Entry {
	return append([]Entry(nil), o.entries...)
}

// IndexOf finds the entry whose map id equals m.
func (o *Order) IndexOf(m host.MapID) (int, bool) {
	for i, e := range o.entries {
		if e.Map == m {
			return i, true
		}
	}
	return 0, false
}

// Resolve locates the current position on the route: id match, then exact
// name/alias match, then fuzzy name match. The second return is false when
// nothing matched and the caller should assume index 0 with a warning.
func (o *Order) Resolve(m host.MapID, name string) (int, bool) {
	if m.Valid() {
		if i, ok := o.IndexOf(m); ok {
			return i, true
		}
	}
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return 0, false
	}
	for i, e := range o.entries {
		if e.Name == n {
			return i, true
		}
		for _, a := range e.Aliases {
			if a == n {
				return i, true
			}
		}
	}
	// Fuzzy pass over names and aliases, nearest edit distance wins.
	best, bestDist := -1, fuzzyMaxDistance+1
	for i, e := range o.entries {
		for _, cand := range append([]string{e.Name}, e.Aliases...) {
			if cand == "" {
				continue
			}
			if d := levenshtein.ComputeDistance(n, cand); d < bestDist {
				best, bestDist = i, d
			}
		}
	}
	if best >= 0 {
		return best, true
	}
	return 0, false
}

// ForwardDistance is the cyclic distance from index i forward to index j:
// (j - i) mod L.
func (o *Order) ForwardDistance(i, j int) int {
	l := len(o.entries)
	if l == 0 {
		return 0
	}
	return mod(j-i, l)
}

// NextNavigable scans forward cyclically from the entry after `from` for
// the next entry with a well-formed map id. ok is false when a full cycle
// finds none.
func (o *Order) NextNavigable(from int) (int, bool) {
	l := len(o.entries)
	for step := 1; step <= l; step++ {
		i := mod(from+step, l)
		if o.entries[i].Map.Valid() {
			return i, true
		}
	}
	return 0, false
}

func mod(a, b int) int {
	if b <= 0 {
		return 0
	}
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
