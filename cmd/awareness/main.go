// Command awareness is a thin wrapper around the awareness core: it wires
// configuration into the pipeline and exposes ingest/replay/seq
// subcommands. All behavior lives in the pkg/ packages.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/tequmsa/awareness/pkg/coherence"
	"github.com/tequmsa/awareness/pkg/collect"
	"github.com/tequmsa/awareness/pkg/config"
	"github.com/tequmsa/awareness/pkg/consent"
	"github.com/tequmsa/awareness/pkg/contracts"
	"github.com/tequmsa/awareness/pkg/embody"
	"github.com/tequmsa/awareness/pkg/ethics"
	"github.com/tequmsa/awareness/pkg/observability"
	"github.com/tequmsa/awareness/pkg/pipeline"
	"github.com/tequmsa/awareness/pkg/recognize"
	"github.com/tequmsa/awareness/pkg/retry"
	"github.com/tequmsa/awareness/pkg/sequence"
	"github.com/tequmsa/awareness/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprintln(stderr, "Usage: awareness <ingest|replay|seq>")
		return 2
	}

	switch args[1] {
	case "ingest":
		return runIngest(args[2:], stdout, stderr)
	case "replay":
		return runReplay(args[2:], stdout, stderr)
	case "seq":
		return runSeq(args[2:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		return 2
	}
}

// buildStore selects the log store backend from configuration.
func buildStore(ctx context.Context, cfg *config.Config) (store.LogStore, error) {
	switch cfg.StoreBackend {
	case "", "file":
		return store.NewFileStore(cfg.LogRoot)
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(ctx, db)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(ctx, db)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildEthicsEngine assembles the built-in rules plus any operator-supplied
// CEL rules from configuration.
func buildEthicsEngine(cfg *config.Config) (*ethics.Engine, error) {
	rules := []ethics.Rule{
		ethics.NewDestructiveActionRule(cfg.DestructiveMarkers),
		ethics.AmbiguousIntentRule{},
	}
	for _, rc := range cfg.EthicsCELRules {
		rule, err := ethics.NewCELRule(rc.Name, rc.Expr)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return ethics.NewEngine(rules...), nil
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, *observability.Provider, error) {
	validator, err := contracts.NewValidator(cfg.SchemaVersion)
	if err != nil {
		return nil, nil, err
	}

	var checker *consent.Checker
	if cfg.ConsentTokenMode == string(consent.ModeJWT) {
		checker = consent.NewJWTChecker(nil)
	} else {
		checker, err = consent.NewPatternChecker(cfg.ConsentTokenPattern)
		if err != nil {
			return nil, nil, err
		}
	}

	logs, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var tails pipeline.TailIndex
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		tails = store.NewRedisTailIndex(client, "")
	}

	engine, err := buildEthicsEngine(cfg)
	if err != nil {
		return nil, nil, err
	}

	recognizer := recognize.New(recognize.Config{
		Consent: checker,
		Engine:  engine,
		Scorer: coherence.NewScorer(
			coherence.WithFloor(cfg.CoherenceFloor),
			coherence.WithWindows(cfg.FibonacciWindows),
		),
		DestructiveMarkers: cfg.DestructiveMarkers,
		SequenceLength:     cfg.SequenceLength,
	})

	policy := retry.DefaultPolicy()
	if cfg.AppendMaxAttempts > 0 {
		policy.MaxAttempts = cfg.AppendMaxAttempts
	}

	// Telemetry exports only when an OTLP endpoint is configured; otherwise
	// the provider is inert and record calls are no-ops.
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(pipeline.Options{
		Collector:    collect.New(validator, cfg.SchemaVersion),
		Recognizer:   recognizer,
		Embodier:     embody.New(nil), // no executor wired: actions are staged
		Logs:         logs,
		Tails:        tails,
		Observer:     obs,
		RetryPolicy:  policy,
		EventTimeout: cfg.EventTimeout,
		IntakeRate:   cfg.IntakeRate,
		IntakeBurst:  cfg.IntakeBurst,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, obs, nil
}

// loadConfig resolves configuration: a named profile when requested,
// environment variables otherwise.
func loadConfig(profilesDir, profile string) (*config.Config, error) {
	if profile != "" {
		return config.LoadProfile(profilesDir, profile)
	}
	return config.Load(), nil
}

func runIngest(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	file := fs.String("file", "-", "path to a CollapseEvent JSON document, or - for stdin")
	profile := fs.String("profile", "", "deployment profile name (profile_<name>.yaml)")
	profilesDir := fs.String("profiles-dir", "config", "directory holding profile files")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var raw []byte
	var err error
	if *file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*file)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read event: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*profilesDir, *profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "setup: %v\n", err)
		return 1
	}

	ctx := context.Background()
	p, obs, err := buildPipeline(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "setup: %v\n", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	outcome, err := p.ProcessRaw(ctx, raw)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ingest: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "appended %s (collapse %s, consent %s, ethics %s)\n",
		outcome.Entry.LogID, outcome.Entry.CollapseID,
		outcome.Entry.ConsentStatus, outcome.Entry.EthicsSignal)
	return 0
}

func runReplay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	partition := fs.String("partition", "", "partition key, YYYY/MM/DD")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *partition == "" {
		_, _ = fmt.Fprintln(stderr, "replay: -partition is required")
		return 2
	}

	ctx := context.Background()
	logs, err := buildStore(ctx, config.Load())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "setup: %v\n", err)
		return 1
	}

	report, err := logs.Replay(ctx, *partition)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	if report.Valid {
		_, _ = fmt.Fprintf(stdout, "partition %s valid (%d entries, head %.12s)\n",
			report.Partition, report.EntriesChecked, report.HeadHash)
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "partition %s INVALID: chain broken at index %d\n",
		report.Partition, report.BrokenAtIndex)
	return 1
}

func runSeq(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seq", flag.ContinueOnError)
	seed := fs.String("seed", "", "seed string")
	identifier := fs.String("id", "", "identifier string")
	length := fs.Int("length", sequence.DefaultLength, "sequence length")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	seq, err := sequence.Generate(*seed, *identifier, *length)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "seq: %v\n", err)
		return 1
	}
	score, err := coherence.NewScorer().Score(seq)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "seq: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%s\ncoherence: %.6f\n", seq, score)
	return 0
}
