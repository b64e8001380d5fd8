// quotactl inspects a running (or stopped) engine's on-disk state: the
// sqlite read index and the compressed event journal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/encounters"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/ownership"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/eventlog"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/indexdb"
	"github.com/highvoltaage/pokebot-prof-oak/internal/quota"
	"github.com/highvoltaage/pokebot-prof-oak/internal/route"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "backlog":
			backlogCmd(os.Args[2:])
			return
		case "catches":
			catchesCmd(os.Args[2:])
			return
		case "encounters":
			encountersCmd(os.Args[2:])
			return
		case "tail":
			tailCmd(os.Args[2:])
			return
		case "progress":
			progressCmd(os.Args[2:])
			return
		}
	}
	progressCmd(os.Args[1:])
}

func openIndex(dataDir string) *indexdb.SQLiteIndex {
	idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	return idx
}

func progressCmd(args []string) {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	rows, err := idx.Progress(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("no quota progress recorded yet")
		return
	}
	for _, r := range rows {
		name := r.MapName
		if name == "" {
			name = r.MapKey
		}
		fmt.Printf("%-24s %-6s %d/%d %s\n", name, r.Method, r.Have, r.Total, r.State)
	}
}

// backlogCmd rebuilds the evaluator from the persisted documents and walks
// the route up to the given map. Offline, so only the static and learned
// encounter tiers answer; live-table-only maps show as NO_DATA and are
// skipped.
func backlogCmd(args []string) {
	fs := flag.NewFlagSet("backlog", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	configDir := fs.String("configs", "./configs", "config directory")
	mapArg := fs.String("map", "", "current map as group:number (required)")
	capsArg := fs.String("caps", "GRASS,SURF,ROD,ROCK_SMASH", "usable methods, comma-separated")
	living := fs.Bool("living", false, "living-dex coverage")
	_ = fs.Parse(args)

	m, ok := host.ParseMapKey(*mapArg)
	if !ok {
		fmt.Fprintln(os.Stderr, "bad -map: expected group:number")
		os.Exit(2)
	}

	cat, err := dex.Load(filepath.Join(*configDir, "species.json"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load species catalog:", err)
		os.Exit(1)
	}
	order, err := route.Load(filepath.Join(*configDir, "route_order.json"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load route order:", err)
		os.Exit(1)
	}
	kb := encounters.New(encounters.Config{
		LearnedPath:  filepath.Join(*dataDir, "learned_encounters.json"),
		VariantsPath: filepath.Join(*dataDir, "variant_letters.json"),
	}, cat, nil, nil)
	var static encounters.StaticIndex
	if docstore.Load(filepath.Join(*configDir, "encounter_index.json"), &static) {
		kb.LoadStaticIndex(static)
	}
	owned := ownership.New(cat, filepath.Join(*dataDir, "owned_shinies.json"), nil)

	caps := host.CapabilitySet{}
	for _, raw := range strings.Split(*capsArg, ",") {
		caps[host.NormalizeMethod(raw, false)] = true
	}

	eval := quota.New(quota.Config{Living: *living}, cat, kb, owned, order, nil, nil, nil)
	items := eval.Backlog(m, "", caps)
	if len(items) == 0 {
		fmt.Println("backlog clear: no known deficits behind this point")
		return
	}
	for _, it := range items {
		fmt.Printf("%-24s %-10s", it.Name, it.Method)
		for i, d := range it.Deficits {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf(" %s x%d", cat.DisplayName(d.Species), d.Missing)
		}
		fmt.Println()
	}
}

func catchesCmd(args []string) {
	fs := flag.NewFlagSet("catches", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 20, "max rows")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	rows, err := idx.RecentCatches(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		shiny := ""
		if r.Shiny {
			shiny = " [shiny]"
		}
		name := r.MapName
		if name == "" {
			name = r.MapKey
		}
		fmt.Printf("%s  %-12s %-24s %-6s%s\n", r.At.Format("2006-01-02 15:04:05"), r.Species, name, r.Method, shiny)
	}
}

func encountersCmd(args []string) {
	fs := flag.NewFlagSet("encounters", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapArg := fs.String("map", "", "map id as group:number (required)")
	method := fs.String("method", "GRASS", "encounter method")
	_ = fs.Parse(args)

	m, ok := host.ParseMapKey(*mapArg)
	if !ok {
		fmt.Fprintln(os.Stderr, "bad -map: expected group:number")
		os.Exit(2)
	}

	idx := openIndex(*dataDir)
	defer idx.Close()

	total, shiny, err := idx.EncounterCount(context.Background(), m, host.NormalizeMethod(*method, false))
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	fmt.Printf("map=%s method=%s encounters=%d shiny=%d\n", m, strings.ToUpper(*method), total, shiny)
}

func tailCmd(args []string) {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "filter by journal kind (e.g. CATCH)")
	n := fs.Int("n", 50, "max entries, newest last")
	_ = fs.Parse(args)

	entries, err := readJournal(filepath.Join(*dataDir, "events"), strings.ToUpper(strings.TrimSpace(*kind)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	if len(entries) > *n {
		entries = entries[len(entries)-*n:]
	}
	for _, e := range entries {
		line, _ := json.Marshal(e)
		fmt.Println(string(line))
	}
}

func readJournal(dir, kind string) ([]eventlog.Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]eventlog.Entry, 0, 1024)
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e eventlog.Entry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if kind != "" && e.Kind != kind {
				continue
			}
			out = append(out, e)
		}
		if err := sc.Err(); err != nil {
			dec.Close()
			_ = f.Close()
			return nil, err
		}
		dec.Close()
		_ = f.Close()
	}
	return out, nil
}
