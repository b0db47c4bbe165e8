package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rendis/cellview/internal/logging"
	"github.com/rendis/cellview/internal/rules"
	"github.com/rendis/cellview/internal/scheduler"
	"github.com/rendis/cellview/internal/store"
	"github.com/rendis/cellview/internal/streaming"
	"github.com/rendis/cellview/internal/validation"
	"github.com/rendis/cellview/pkg/mcp"
	"github.com/rendis/cellview/pkg/schema"
)

const usage = `usage: cellview <command> [flags]

commands:
  serve      run the MCP server on stdio (default)
  classify   classify a value and print the matched rule
  init       write ~/.cellview/settings.json
  version    print the version
`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe()
	case "classify":
		runClassify(args)
	case "init":
		runInit(args)
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func newLogger(cfg Config) *slog.Logger {
	// Stdout carries the MCP protocol, so logs go to stderr.
	return slog.New(logging.NewCorrelationHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.slogLevel()}),
	))
}

func newRuleSet(cfg Config, logger *slog.Logger) (*rules.RuleSet, error) {
	rs := rules.Default(logger)
	if err := rs.RegisterCustom(cfg.CustomRules); err != nil {
		return nil, fmt.Errorf("register custom rules: %w", err)
	}
	return rs, nil
}

func runServe() {
	cfg := loadConfig()
	logger := newLogger(cfg)

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		fatal(logger, "compile schemas", err)
	}
	if err := cfg.validate(validator); err != nil {
		fatal(logger, "invalid configuration", err)
	}
	rs, err := newRuleSet(cfg, logger)
	if err != nil {
		fatal(logger, "build rule set", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		fatal(logger, "create data directory", err)
	}
	st, err := store.NewLibSQLStore(cfg.dbURI())
	if err != nil {
		fatal(logger, "open store", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		fatal(logger, "migrate store", err)
	}

	retention, _ := cfg.retention()
	maint, err := scheduler.NewMaintenance(st, cfg.MaintenanceSchedule, retention, logger)
	if err != nil {
		fatal(logger, "maintenance schedule", err)
	}
	if err := maint.Start(ctx); err != nil {
		fatal(logger, "start maintenance", err)
	}
	defer maint.Stop()

	hub := streaming.NewMemoryHub()
	ws := mcp.NewWorkspace(mcp.WorkspaceDeps{
		Store:       st,
		Hub:         hub,
		Rules:       rs,
		Validator:   validator,
		ShapePrefix: cfg.ShapePrefix,
		Logger:      logger,
	})
	defer ws.CloseAll(context.Background())

	srv := mcp.NewCellviewServer(mcp.CellviewServerDeps{
		Workspace: ws,
		Hub:       hub,
		Logger:    logger,
		Version:   version,
	})

	logger.Info("cellview serving on stdio",
		slog.String("version", version),
		slog.String("db_path", cfg.DBPath),
		slog.Int("rules", rs.Len()),
	)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("serve", slog.String("error", err.Error()))
	}
}

func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	value := fs.String("value", "", "JSON encoded value (required)")
	shape := fs.String("shape", "json", "value shape: json, int, float, string, table, data_frame, series, figure, image, error, none")
	cellAddr := fs.String("cell", "Sheet1!A1", "cell address passed to custom rules")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *value == "" && *shape != "none" {
		fmt.Fprintln(os.Stderr, "Error: -value is required")
		os.Exit(1)
	}

	cfg := loadConfig()
	logger := newLogger(cfg)

	c, err := schema.ParseCellRef(*cellAddr, "Sheet1")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	v, err := schema.DecodeValue(*shape, *value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid value: %v\n", err)
		os.Exit(1)
	}
	rs, err := newRuleSet(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	m := rs.Classify(context.Background(), c, v)
	out, _ := json.MarshalIndent(map[string]any{
		"cell":      c.String(),
		"rule":      m.Rule.Name(),
		"rule_kind": string(m.Kind),
		"kind":      m.CtlKind.Key(),
		"value":     m.Value,
		"fallback":  m.Fallback,
	}, "", "  ")
	fmt.Println(string(out))
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dbPath := fs.String("db-path", "", "database path (default: ~/.cellview/cellview.db)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	prefix := fs.String("shape-prefix", "cv", "prefix embedded in overlay names")
	schedule := fs.String("maintenance-schedule", "0 3 * * *", "cron schedule for store maintenance")
	retention := fs.String("event-retention", "720h", "age after which lifecycle events are pruned (0 keeps them)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := cellviewDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	cfg := Config{
		DBPath:              *dbPath,
		LogLevel:            *logLevel,
		ShapePrefix:         *prefix,
		MaintenanceSchedule: *schedule,
		EventRetention:      *retention,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(dir, "cellview.db")
	}
	if _, err := cfg.retention(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := scheduler.ValidateSchedule(cfg.MaintenanceSchedule); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
