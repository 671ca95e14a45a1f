// jwtworker recovers the HMAC secret of a JWT by running a jwt_tool
// dictionary attack. It relays every output line to the observing backend,
// stops jwt_tool as soon as the secret is reported, and returns the secret
// with its SHA-256 digest.
//
// Server mode (default): serves POST /crack plus health, job, log and
// metrics endpoints.
//
// One-shot mode (--token): runs a single job, prints the result as JSON and
// exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/config"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/detector"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/handlers"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/metrics"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/relay"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/routes"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/wordlist"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

// shutdownTimeout bounds graceful HTTP shutdown. In-flight jobs are not
// waited for beyond it.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile string
	var listenAddr string
	var tokenFlag string
	var wordlistFile string

	flagSet := pflag.NewFlagSet("jwtworker", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "load settings from this .env file if it exists")
	flagSet.StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides LISTEN_ADDR)")
	flagSet.StringVar(&tokenFlag, "token", "", "run a single job against this JWT and exit")
	flagSet.StringVar(&wordlistFile, "wordlist-file", "", "with --token, use this file's content as a custom wordlist")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if wordlistFile != "" && tokenFlag == "" {
		return fmt.Errorf("--wordlist-file requires --token")
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dir := os.Getenv("LOG_DIR"); dir != "" {
		if err := debug.EnableFileLogging(dir); err != nil {
			debug.Warning("File logging disabled: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	w, err := buildWorker(cfg, recorder)
	if err != nil {
		return err
	}
	if closer, ok := w.relay.(io.Closer); ok {
		defer closer.Close()
	}

	if tokenFlag != "" {
		return runOnce(cfg, w.manager, tokenFlag, wordlistFile)
	}

	// wordlists of running jobs are never swept, however long the job runs
	sweeper := wordlist.NewSweeper(cfg.WordlistDir, cfg.WordlistMaxAge, w.provisioner.InUse)
	if cfg.SweepSchedule != "" {
		if err := sweeper.Start(cfg.SweepSchedule); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	return serve(cfg, w.manager, recorder)
}

// worker is the assembled job pipeline
type worker struct {
	manager     *jobs.Manager
	provisioner *wordlist.Provisioner
	relay       relay.Relay
}

// buildWorker assembles the job pipeline from configuration
func buildWorker(cfg *config.Config, recorder *metrics.Recorder) (*worker, error) {
	var extra []detector.Rule
	if cfg.DetectorRulesFile != "" {
		rules, err := detector.LoadRules(cfg.DetectorRulesFile)
		if err != nil {
			return nil, err
		}
		extra = rules
		debug.Info("Loaded %d extra detector rules from %s", len(rules), cfg.DetectorRulesFile)
	}

	if err := os.MkdirAll(cfg.WordlistDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create wordlist directory: %w", err)
	}
	corpus := wordlist.NewCorpus(cfg.DefaultWordlist, cfg.WordlistDir)
	provisioner := wordlist.NewProvisioner(cfg.WordlistDir, corpus)

	binary, prefix := cfg.ToolCommand()
	tool := jobs.ToolConfig{
		Binary:     binary,
		Prefix:     prefix,
		NoiseLines: cfg.NoiseLines,
	}

	rel := relay.New(cfg.RelayMode, cfg.BackendURL, cfg.RelayTimeout, recorder)
	debug.Info("jwt_tool: %s %v, default wordlist: %s, relay: %s %s",
		binary, prefix, cfg.DefaultWordlist, cfg.RelayMode, cfg.BackendURL)

	return &worker{
		manager:     jobs.NewManager(tool, provisioner, rel, detector.New(extra...), recorder),
		provisioner: provisioner,
		relay:       rel,
	}, nil
}

// runOnce runs a single job and prints its result
func runOnce(cfg *config.Config, manager *jobs.Manager, token, wordlistFile string) error {
	req := jobs.CrackRequest{Token: token}
	if wordlistFile != "" {
		data, err := os.ReadFile(wordlistFile)
		if err != nil {
			return fmt.Errorf("failed to read wordlist file: %w", err)
		}
		content := string(data)
		req.Wordlist = &content
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.CrackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CrackTimeout)
		defer cancel()
	}

	result, err := manager.Run(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// serve runs the HTTP server until SIGINT or SIGTERM
func serve(cfg *config.Config, manager *jobs.Manager, recorder *metrics.Recorder) error {
	router := routes.NewRouter(
		handlers.NewCrackHandler(manager, cfg.CrackTimeout),
		handlers.NewStatusHandler(manager.Registry()),
		recorder.Handler(),
	)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		debug.Info("Listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		debug.Info("Received %v, shutting down (%d jobs in flight)", sig, manager.Registry().Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
