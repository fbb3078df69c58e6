package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/athena-playground/internal/experiment"
	"github.com/pavelanni/athena-playground/internal/gateway"
	"github.com/pavelanni/athena-playground/internal/handler"
	"github.com/pavelanni/athena-playground/internal/history"
	appI18n "github.com/pavelanni/athena-playground/internal/i18n"
	"github.com/pavelanni/athena-playground/internal/judge"
	"github.com/pavelanni/athena-playground/internal/judge/prompts"
	"github.com/pavelanni/athena-playground/internal/metrics"
	"github.com/pavelanni/athena-playground/internal/model"
	"github.com/pavelanni/athena-playground/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "playground",
		Short: "Playground for developing and evaluating Athena assessment modules",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd(), judgeCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `playground --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the playground HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":3000", "HTTP listen address")
	f.String("data-dir", "data", "Directory holding the data partitions")
	f.String("db", "playground.db", "SQLite database for the request and import history")
	f.String("athena-url", "", "Default Athena base URL for health checks and requests")
	f.String("athena-secret", "", "Shared secret sent to Athena when a request carries none")
	f.String("public-url", "", "Public origin used in download URLs (default: derived from the request)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /playground)")
	f.StringSlice("allowed-origins", nil, "CORS allowed origins (default: any)")
	f.String("admin-password", "", "Password guarding partition delete and import (or set PLAYGROUND_ADMIN_PASSWORD)")
	f.StringP("lang", "l", "en", "Default UI language (en, de)")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a data partition as a zip archive",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("data-dir", "data", "Directory holding the data partitions")
	f.StringP("mode", "m", "", "Data mode to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("mode")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace a data partition with the contents of a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("data-dir", "data", "Directory holding the data partitions")
	f.String("db", "playground.db", "SQLite database for the request and import history")
	f.StringP("mode", "m", "", "Data mode to import into (required)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("mode")
	return cmd
}

func judgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Rate an expert evaluation with an LLM acting as one expert",
		RunE:  runJudge,
	}
	f := cmd.Flags()
	f.String("data-dir", "data", "Directory holding the data partitions")
	f.StringP("mode", "m", string(model.DataModeEvaluation), "Data mode holding the evaluation")
	f.StringP("evaluation", "e", "", "Expert evaluation id (required)")
	f.String("expert", "llm-judge", "Expert id the ratings are stored under")
	f.Bool("start", false, "Start the evaluation first if it has not been started")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.Standard), "Rating prompt variant (strict, standard, lenient)")
	f.Duration("timeout", 30*time.Minute, "Abort the run after this long")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("evaluation")
	return cmd
}

func setupLogging(cmd *cobra.Command) handler.RouterOptions {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	jsonLogs := strings.ToLower(v.GetString("log-format")) == "json"
	var logHandler slog.Handler
	if jsonLogs {
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return handler.RouterOptions{LogLevel: logLevel, JSONLogs: jsonLogs}
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PLAYGROUND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("playground")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/playground")
	v.AddConfigPath("/etc/playground")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	routerOpts := setupLogging(cmd)
	v := viperForCmd(cmd)

	data, err := store.New(v.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	hist, err := history.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer hist.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServerConfig{
		AthenaURL:      v.GetString("athena-url"),
		AthenaSecret:   v.GetString("athena-secret"),
		PublicURL:      strings.TrimRight(v.GetString("public-url"), "/"),
		BasePath:       normalizeBasePath(v.GetString("base-path")),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	}
	if pw := v.GetString("admin-password"); pw != "" {
		cfg.AdminHash, err = handler.HashPassword(pw)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
	} else {
		slog.Warn("no admin password set, partition delete and import are unauthenticated")
	}

	gw := gateway.New(
		gateway.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
		gateway.WithRecorder(hist),
	)
	h, err := handler.New(data, hist, gw, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}
	routerOpts.Lang = lang

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.NewRouter(h, routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"data_dir", data.Root(),
			"athena_url", cfg.AthenaURL,
			"lang", lang,
			"base_path", cfg.BasePath,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseMode(v *viper.Viper) (model.DataMode, error) {
	mode, err := model.ParseDataMode(v.GetString("mode"))
	if err != nil {
		return "", fmt.Errorf("invalid data mode %q", v.GetString("mode"))
	}
	return mode, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	mode, err := parseMode(v)
	if err != nil {
		return err
	}
	data, err := store.New(v.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := data.ExportPartition(mode, w); err != nil {
		return fmt.Errorf("export %s: %w", mode, err)
	}
	metrics.PartitionOp("export")
	slog.Info("exported partition", "mode", mode, "output", outPath)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	mode, err := parseMode(v)
	if err != nil {
		return err
	}
	data, err := store.New(v.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}
	hist, err := history.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer hist.Close()

	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	hash := sha256sum(raw)
	last, err := hist.LastImportHash(mode)
	if err != nil {
		return fmt.Errorf("check import history for %s: %w", mode, err)
	}
	if last == hash {
		slog.Warn("archive was already imported into this partition, importing again", "path", path, "mode", mode)
	}

	files, err := data.ImportPartition(mode, bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if err := hist.RecordImport(model.ImportRecord{Mode: mode, SHA256: hash, Files: files}); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported partition", "path", path, "mode", mode, "files", files)
	return nil
}

func runJudge(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	mode, err := parseMode(v)
	if err != nil {
		return err
	}
	data, err := store.New(v.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.Standard)
	}
	client, err := judge.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), variant)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	evalID, expert := v.GetString("evaluation"), v.GetString("expert")
	if v.GetBool("start") {
		if err := startForJudge(data, mode, evalID, expert, v.GetString("llm-model"), variant); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	p, err := judge.Run(ctx, data, client, mode, evalID, expert)
	if err != nil {
		return fmt.Errorf("judge %s: %w", evalID, err)
	}
	cfg, err := data.LoadExpertEvaluationConfig(mode, evalID)
	if err != nil {
		return err
	}
	slog.Info("judge finished",
		"evaluation_id", evalID,
		"expert_id", expert,
		"finished", p.IsFinishedEvaluating,
		"remaining", experiment.Remaining(p, cfg),
	)
	return nil
}

// startForJudge starts an unstarted evaluation with the judge as its
// configured module, adding expert to the expert list if needed.
func startForJudge(data *store.Store, mode model.DataMode, evalID, expert, modelName, variant string) error {
	cfg, err := data.LoadExpertEvaluationConfig(mode, evalID)
	if err != nil {
		return fmt.Errorf("load evaluation %s: %w", evalID, err)
	}
	if cfg.Started {
		return nil
	}
	if !slices.Contains(cfg.ExpertIDs, expert) {
		cfg.ExpertIDs = append(cfg.ExpertIDs, expert)
	}
	moduleCfg, err := json.Marshal(map[string]string{"model": modelName, "prompt_variant": variant})
	if err != nil {
		return err
	}
	next := cfg
	next.ModuleConfigs = make(map[string]json.RawMessage, len(cfg.ModuleConfigs)+1)
	for name, raw := range cfg.ModuleConfigs {
		next.ModuleConfigs[name] = raw
	}
	next.ModuleConfigs["judge"] = moduleCfg
	next.Started = true
	stored, err := experiment.CheckUpdate(cfg, next)
	if err != nil {
		return fmt.Errorf("start evaluation %s: %w", evalID, err)
	}
	if _, err := data.SaveExpertEvaluationConfig(mode, stored); err != nil {
		return err
	}
	slog.Info("started evaluation", "evaluation_id", evalID, "execution_mode", stored.ExecutionMode)
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
