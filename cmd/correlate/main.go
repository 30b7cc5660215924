// Command correlate runs the waveform correlation pipeline over a trace set
// and prints a per-trace report. With -db set the run is also persisted to a
// SQLite database for later retrieval.
//
// Usage:
//
//	correlate -input traces.json [-config tuning.json] [-db results.db]
//	          [-linkage average|single|complete] [-threshold 0.2]
//	          [-maxlag seconds] [-workers n]
//	correlate migrate up|down|version -db results.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sunjingtao1119/GISMO/internal/analysis"
	"github.com/sunjingtao1119/GISMO/internal/config"
	"github.com/sunjingtao1119/GISMO/internal/corrdb"
	"github.com/sunjingtao1119/GISMO/internal/linkage"
	"github.com/sunjingtao1119/GISMO/internal/waveform"
)

var (
	inputPath   = flag.String("input", "", "Trace set JSON file to analyse")
	configPath  = flag.String("config", "", "Optional tuning JSON file")
	dbPath      = flag.String("db", "", "Optional SQLite database to persist the run")
	linkageFlag = flag.String("linkage", "", "Linkage rule: average, single or complete")
	threshold   = flag.Float64("threshold", -1, "Dendrogram cut threshold (distance units)")
	maxLag      = flag.Float64("maxlag", -1, "Maximum lag search window in seconds (0 = full overlap)")
	workers     = flag.Int("workers", 0, "Correlation worker count (0 = one per CPU)")
)

func main() {
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		runMigrateCommand(args[1:], *dbPath)
		return
	}

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	params, err := buildParams()
	if err != nil {
		log.Fatalf("Invalid parameters: %v", err)
	}

	ts, err := waveform.LoadTraceSetFile(*inputPath)
	if err != nil {
		log.Fatalf("Failed to load trace set: %v", err)
	}
	log.Printf("Loaded %d traces (%d samples at %g Hz)",
		ts.Len(), ts.NumSamples(), ts.SampleRate())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := analysis.NewSession(params)
	if err := session.SetTraces(ts); err != nil {
		log.Fatalf("Failed to install trace set: %v", err)
	}

	rec, err := corrdb.RecordFromSession(ctx, session)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	printReport(rec)

	if *dbPath != "" {
		db, err := corrdb.Open(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open results database: %v", err)
		}
		defer db.Close()
		if err := db.SaveRun(ctx, rec); err != nil {
			log.Fatalf("Failed to persist run: %v", err)
		}
		log.Printf("Persisted run %s to %s", rec.RunID, *dbPath)
	}
}

// buildParams layers defaults, the optional config file and explicit flags,
// in that order.
func buildParams() (analysis.Params, error) {
	params := analysis.DefaultParams()

	if *configPath != "" {
		tuning, err := config.Load(*configPath)
		if err != nil {
			return params, err
		}
		if params, err = tuning.Apply(params); err != nil {
			return params, err
		}
	}

	if *linkageFlag != "" {
		rule, err := linkage.ParseRule(*linkageFlag)
		if err != nil {
			return params, err
		}
		params.LinkageRule = rule
	}
	if *threshold >= 0 {
		params.CutThreshold = *threshold
	}
	if *maxLag >= 0 {
		params.MaxLagSeconds = *maxLag
	}
	if *workers > 0 {
		params.Workers = *workers
	}
	return params, nil
}

func printReport(rec *corrdb.RunRecord) {
	fmt.Printf("Run %s: %d traces, linkage=%s, threshold=%g (%s)\n\n",
		rec.RunID, rec.TraceCount, rec.LinkageRule, rec.CutThreshold,
		rec.DistanceConvention)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE\tSTATION\tMEAN CC\t+SIGMA\t-SIGMA\tDELAY (s)\tRMS\tCLUSTER")
	for i, tr := range rec.Traces {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%.4f\t%+.5f\t%.5f\t%d\n",
			i, tr.ID, rec.Stats.MeanCoeff[i], rec.Stats.SigmaUpper[i],
			rec.Stats.SigmaLower[i], rec.Stats.Delay[i],
			rec.Stats.RMSResidual[i], rec.Clusters[i])
	}
	w.Flush()

	fmt.Printf("\n%d clusters at threshold %g; dendrogram spans distances up to %.4f over %d merges\n",
		rec.Clusters.NumClusters(), rec.CutThreshold,
		rec.Tree.MaxDistance(), len(rec.Tree.Merges))
}

// runMigrateCommand handles the 'migrate' subcommand dispatching.
func runMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 || dbPath == "" {
		printMigrateHelp()
		os.Exit(1)
	}

	db, err := corrdb.OpenRaw(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied")

	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back one migration")

	case "version":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		log.Printf("Schema version %d (dirty=%v)", version, dirty)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", args[0])
		printMigrateHelp()
		os.Exit(1)
	}
}

func printMigrateHelp() {
	fmt.Println(`Usage: correlate -db <path> migrate <action>

Actions:
  up       Apply all pending migrations
  down     Roll back the most recent migration
  version  Show current schema version`)
}
