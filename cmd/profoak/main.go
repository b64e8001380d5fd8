package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/highvoltaage/pokebot-prof-oak/internal/dex"
	"github.com/highvoltaage/pokebot-prof-oak/internal/encounters"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host"
	"github.com/highvoltaage/pokebot-prof-oak/internal/host/bridge"
	"github.com/highvoltaage/pokebot-prof-oak/internal/nav"
	"github.com/highvoltaage/pokebot-prof-oak/internal/ownership"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/docstore"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/eventlog"
	"github.com/highvoltaage/pokebot-prof-oak/internal/persistence/indexdb"
	"github.com/highvoltaage/pokebot-prof-oak/internal/protocol"
	"github.com/highvoltaage/pokebot-prof-oak/internal/quota"
	"github.com/highvoltaage/pokebot-prof-oak/internal/route"
	"github.com/highvoltaage/pokebot-prof-oak/internal/runner"
	"github.com/highvoltaage/pokebot-prof-oak/internal/tuning"
)

func main() {
	var (
		wsURL      = flag.String("url", "ws://127.0.0.1:8888/v1/ws", "host bridge ws url")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		schemasDir = flag.String("schemas", "./schemas", "inbound message schema directory (empty to disable validation)")
		statusAddr = flag.String("status_addr", "127.0.0.1:8889", "http status listen address (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read index (journal still written)")
	)
	flag.Parse()

	_ = godotenv.Load()
	logger := log.New(os.Stdout, "[profoak] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	action, err := quota.ParseAction(tune.MetAction)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	cat, err := dex.Load(filepath.Join(*configDir, "species.json"))
	if err != nil {
		logger.Fatalf("load species catalog: %v", err)
	}
	// A profile-local route order overrides the bundled one.
	routePath := filepath.Join(*dataDir, "route_order.json")
	if _, serr := os.Stat(routePath); serr != nil {
		routePath = filepath.Join(*configDir, "route_order.json")
	}
	order, err := route.Load(routePath)
	if err != nil {
		logger.Fatalf("load route order: %v", err)
	}

	var validator *protocol.Validator
	if strings.TrimSpace(*schemasDir) != "" {
		validator, err = protocol.LoadValidator(*schemasDir)
		if err != nil {
			logger.Printf("WARNING: schema validation disabled: %v", err)
			validator = nil
		}
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	session := bridge.New(bridge.Config{
		URL:           *wsURL,
		Validator:     validator,
		FishingAsSurf: tune.GroupFishingWithWater,
		Logger:        log.New(os.Stdout, "[bridge] ", log.LstdFlags|log.Lmicroseconds),
	})
	session.Start()
	defer session.Close()

	kb := encounters.New(encounters.Config{
		LearnedPath:  filepath.Join(*dataDir, "learned_encounters.json"),
		VariantsPath: filepath.Join(*dataDir, "variant_letters.json"),
		PruneLearned: tune.PruneLearned,
	}, cat, session, log.New(os.Stdout, "[encounters] ", log.LstdFlags|log.Lmicroseconds))
	var static encounters.StaticIndex
	if docstore.Load(filepath.Join(*configDir, "encounter_index.json"), &static) {
		kb.LoadStaticIndex(static)
		logger.Printf("static encounter index: %d maps", len(static.Maps))
	}

	owned := ownership.New(cat, filepath.Join(*dataDir, "owned_shinies.json"),
		log.New(os.Stdout, "[ownership] ", log.LstdFlags|log.Lmicroseconds))

	journal := eventlog.New(*dataDir)
	defer journal.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
	}

	navigator := nav.New(order, session, session, session, tune.Nav,
		log.New(os.Stdout, "[nav] ", log.LstdFlags|log.Lmicroseconds))

	navigate := func(from host.MapID, fromName string, method host.Method) error {
		if err := navigator.Begin(from, fromName, method); err != nil {
			return err
		}
		if err := journal.Log(eventlog.KindHandoff, from, fromName, method, "", false, ""); err != nil {
			logger.Printf("journal write failed: %v", err)
		}
		return nil
	}
	eval := quota.New(quota.Config{
		Living:    tune.LivingDex,
		Action:    action,
		AutoBlock: tune.AutoCatchBlock,
		BlockPath: filepath.Join(*dataDir, "catch_block.json"),
	}, cat, kb, owned, order, session, navigate,
		log.New(os.Stdout, "[quota] ", log.LstdFlags|log.Lmicroseconds))

	run := runner.New(runner.Config{
		Frames:        session.Frames(),
		Events:        session.Events(),
		Host:          session,
		Dex:           cat,
		Knowledge:     kb,
		Ledger:        owned,
		Evaluator:     eval,
		Navigator:     navigator,
		Journal:       journal,
		Index:         idx,
		Logger:        logger,
		FishingAsSurf: tune.GroupFishingWithWater,
	})

	ctx, cancel := signalContext()
	defer cancel()

	if strings.TrimSpace(*statusAddr) != "" {
		srv := statusServer(*statusAddr, session, run)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("status server: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		logger.Printf("status endpoints on %s", *statusAddr)
	}

	logger.Printf("connecting to %s (living_dex=%v met_action=%s)", *wsURL, tune.LivingDex, tune.MetAction)
	if err := run.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("runner: %v", err)
	}
}

func statusServer(addr string, session *bridge.Session, run *runner.Runner) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP profoak_bridge_connected Whether the host bridge is connected.\n")
		fmt.Fprintf(rw, "# TYPE profoak_bridge_connected gauge\n")
		fmt.Fprintf(rw, "profoak_bridge_connected %d\n", boolMetric(session.Connected()))

		fmt.Fprintf(rw, "# HELP profoak_frames_total Frames dispatched to the engine.\n")
		fmt.Fprintf(rw, "# TYPE profoak_frames_total counter\n")
		fmt.Fprintf(rw, "profoak_frames_total %d\n", run.FramesSeen())

		fmt.Fprintf(rw, "# HELP profoak_events_total Events dispatched to the engine.\n")
		fmt.Fprintf(rw, "# TYPE profoak_events_total counter\n")
		fmt.Fprintf(rw, "profoak_events_total %d\n", run.EventsSeen())
	})
	if envBool("PROFOAK_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func boolMetric(b bool) int {
	if b {
		return 1
	}
	return 0
}

func envBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
