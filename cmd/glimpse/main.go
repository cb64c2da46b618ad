package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/glimpsehq/glimpse/internal/config"
	"github.com/glimpsehq/glimpse/internal/extract"
	"github.com/glimpsehq/glimpse/internal/knowledge"
	"github.com/glimpsehq/glimpse/internal/llm"
	glimpsemcp "github.com/glimpsehq/glimpse/internal/mcp"
	"github.com/glimpsehq/glimpse/internal/session"
	"github.com/glimpsehq/glimpse/internal/store"
)

const version = "0.1.0-dev"

func main() {
	// Optional; real env vars always win over .env entries.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "sessions":
		if err := runSessions(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "knowledge":
		if err := runKnowledge(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "combined":
		if err := runCombined(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "trends":
		if err := runTrends(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "flag-url":
		if err := runFlagURL(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "seed":
		if err := runSeed(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "stats":
		if err := runStats(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "config":
		if err := runConfig(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("glimpse %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonFlags holds the flags shared by every subcommand.
type commonFlags struct {
	configPath string
	dbPath     string
	seedPath   string
	llmFlag    string
	rest       []string
}

func parseCommon(args []string) (commonFlags, error) {
	var f commonFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--config requires a path")
			}
			f.configPath = args[i]
		case arg == "--db":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--db requires a path")
			}
			f.dbPath = args[i]
		case arg == "--seeds":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--seeds requires a path")
			}
			f.seedPath = args[i]
		case arg == "--llm":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--llm requires provider/model")
			}
			f.llmFlag = args[i]
		case strings.HasPrefix(arg, "-"):
			return f, fmt.Errorf("unknown flag: %s", arg)
		default:
			f.rest = append(f.rest, arg)
		}
	}
	return f, nil
}

func resolveConfig(f commonFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:  f.configPath,
		CLILLM:      f.llmFlag,
		CLIDBPath:   f.dbPath,
		CLISeedPath: f.seedPath,
	})
}

func openStore(cfg config.ResolvedConfig) (*store.Store, error) {
	return store.Open(store.Config{DBPath: cfg.DBPath.Value})
}

func loadCatalog(cfg config.ResolvedConfig) (*knowledge.Catalog, error) {
	if cfg.SeedPath.Value == "" {
		return knowledge.DefaultCatalog(), nil
	}
	return knowledge.LoadCatalog(cfg.SeedPath.Value)
}

func buildClassifier(cfg config.ResolvedConfig) (extract.Classifier, error) {
	llmCfg, err := llm.ParseLLMFlag(cfg.LLMProvider.Value)
	if err != nil {
		return nil, err
	}
	if key := cfg.APIKeyForProvider(cfg.LLMProvider.Value); key.Value != "" {
		llmCfg.APIKey = key.Value
	}
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, err
	}
	return extract.NewLLMClassifier(provider), nil
}

func runServe(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("loading seed catalog: %w", err)
	}

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return fmt.Errorf("configuring classifier: %w", err)
	}

	mgr := session.NewManager(session.Config{
		Store:                 st,
		Classifier:            classifier,
		Hints:                 catalog.Hints(),
		SuppressReportRemerge: cfg.SuppressReportRemerge,
	})
	builder := knowledge.NewBuilder(st, catalog)

	srv := glimpsemcp.NewServer(glimpsemcp.ServerConfig{
		Store:    st,
		Sessions: mgr,
		Builder:  builder,
		Version:  version,
	})

	fmt.Fprintf(os.Stderr, "glimpse %s serving MCP on stdio (db: %s, llm: %s)\n",
		version, cfg.DBPath.Value, cfg.LLMProvider.Value)
	return server.ServeStdio(srv)
}

func runSessions(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 1 {
		return fmt.Errorf("usage: glimpse sessions <user-id>")
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	sessions, err := st.ListSessions(context.Background(), f.rest[0])
	if err != nil {
		return err
	}
	return printJSON(sessions)
}

func runKnowledge(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 1 {
		return fmt.Errorf("usage: glimpse knowledge <user-id>")
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	agg, err := st.Aggregate(context.Background(), f.rest[0])
	if err != nil {
		return err
	}
	return printJSON(agg)
}

func runCombined(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 1 {
		return fmt.Errorf("usage: glimpse combined <user-id>")
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("loading seed catalog: %w", err)
	}

	view, err := knowledge.NewBuilder(st, catalog).Build(context.Background(), f.rest[0])
	if err != nil {
		return err
	}
	return printJSON(view)
}

func runTrends(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 1 {
		return fmt.Errorf("usage: glimpse trends <user-id>")
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	trends, err := knowledge.AnalyzeTrends(context.Background(), st, f.rest[0])
	if err != nil {
		return err
	}
	return printJSON(trends)
}

func runFlagURL(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	if len(f.rest) != 3 {
		return fmt.Errorf("usage: glimpse flag-url <user-id> <url> <safe|unknown|flagged>")
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	userID, rawURL, rating := f.rest[0], f.rest[1], f.rest[2]
	if err := st.SetURLSafety(context.Background(), userID, rawURL, rating); err != nil {
		return err
	}
	fmt.Printf("rating for %s set to %s\n", rawURL, rating)
	return nil
}

func runSeed(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("loading seed catalog: %w", err)
	}
	return printJSON(catalog)
}

func runStats(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runConfig(args []string) error {
	f, err := parseCommon(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}
	// Never print key material, only provenance.
	for name, key := range cfg.LLMKeys {
		key.Value = "[set]"
		cfg.LLMKeys[name] = key
	}
	return printJSON(cfg)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printUsage() {
	fmt.Println(`glimpse - screen activity knowledge engine (MCP server + CLI)

Usage:
  glimpse serve                                 Serve MCP tools on stdio
  glimpse sessions <user-id>                    List a user's sessions
  glimpse knowledge <user-id>                   Show learned knowledge aggregate
  glimpse combined <user-id>                    Show combined knowledge view
  glimpse trends <user-id>                      Show learning trends
  glimpse flag-url <user-id> <url> <rating>     Override a URL safety rating
  glimpse seed                                  Show the seed catalog in use
  glimpse stats                                 Show store statistics
  glimpse config                                Show resolved configuration
  glimpse version                               Show version

Flags (all commands):
  --config <path>    Config file (default ~/.glimpse/config.yaml)
  --db <path>        SQLite database path (default ~/.glimpse/glimpse.db)
  --seeds <path>     Seed catalog YAML (default: built-in catalog)
  --llm <spec>       LLM provider/model, e.g. openai/gpt-4o-mini
                     (a bare provider name selects its default model)

Environment:
  GLIMPSE_DB, GLIMPSE_SEEDS, GLIMPSE_LLM, GLIMPSE_SUPPRESS_REMERGE
  OPENAI_API_KEY, OPENROUTER_API_KEY, GEMINI_API_KEY`)
}
