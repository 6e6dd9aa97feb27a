// Package main provides the entry point for the policyguard monitor daemon.
// policyguard is a runtime policy-enforcement monitor for columnar
// dataframe query engines: it tracks a provenance lattice over every cell
// and refuses to finalize a result that still carries an undischarged
// declassification obligation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agentguard/policyguard/internal/audit"
	auditpg "github.com/agentguard/policyguard/internal/audit/postgres"
	"github.com/agentguard/policyguard/internal/config"
	"github.com/agentguard/policyguard/internal/httpapi"
	"github.com/agentguard/policyguard/internal/monitor"
	"github.com/agentguard/policyguard/internal/policyio"
	"github.com/agentguard/policyguard/internal/telemetry"
	"github.com/agentguard/policyguard/pkg/admission"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "policyguardd",
		Short: "Runtime policy-enforcement monitor for dataframe query engines",
		Long: `policyguardd tracks a provenance lattice over every dataframe cell
a host query engine produces and refuses to finalize results that still carry
an undischarged declassification obligation.

Features:
  • Per-session monitor contexts with reference-counted dataframe registries
  • OPA/Rego admission control over transform, UDF and aggregate names
  • Parquet and JSON persistence of the policy lattice alongside table data
  • Postgres-backed audit trail of every finalize outcome`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the policyguard monitor daemon",
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("config", "c", "", "Path to configuration file")
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")

	checkCmd := &cobra.Command{
		Use:   "check [dataframe.json]",
		Short: "Load a JSON-mirror dataframe and finalize it, printing the outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	checkCmd.Flags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configureLogging(debug)

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	port, _ := cmd.Flags().GetString("port")
	if port != "" {
		cfg.Server.Port = port
	}

	log.Info().
		Str("version", version).
		Str("port", cfg.Server.Port).
		Msg("starting policyguardd")

	m, err := monitor.InitMonitor()
	if err != nil {
		return fmt.Errorf("initializing monitor: %w", err)
	}

	ctx := context.Background()
	deps := &httpapi.RouterDeps{Mon: m}

	if cfg.OTEL.Enabled {
		provider, err := telemetry.NewProvider(telemetry.Config{
			ServiceName:    cfg.OTEL.ServiceName,
			ServiceVersion: version,
			OTLPEndpoint:   cfg.OTEL.Endpoint,
		})
		if err != nil {
			log.Warn().Err(err).Msg("telemetry provider init failed, continuing without metrics")
		} else {
			m.SetTelemetry(provider)
			deps.Telemetry = provider
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("telemetry shutdown error")
				}
			}()
		}
	}

	admissionEngine, err := admission.NewEngine()
	if err != nil {
		return fmt.Errorf("initializing admission engine: %w", err)
	}
	if len(cfg.Admission.PolicyPaths) > 0 {
		if err := admissionEngine.LoadPolicies(ctx, cfg.Admission.PolicyPaths); err != nil {
			log.Warn().Err(err).Msg("loading admission policies failed, denying all gated operations")
		}
		deps.Admission = admissionEngine
	} else if _, statErr := os.Stat(cfg.Admission.BundlePath); statErr == nil {
		if err := admissionEngine.LoadPolicyBundle(ctx, cfg.Admission.BundlePath); err != nil {
			log.Warn().Err(err).Msg("loading admission bundle failed, denying all gated operations")
		}
		deps.Admission = admissionEngine
	} else {
		log.Info().Msg("no admission policies configured, all transforms/UDFs/aggs admitted")
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Database.Host != "" && cfg.Database.User != "" {
		db, err := auditpg.New(ctx, auditpg.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: int32(cfg.Database.MaxConns),
		})
		if err != nil {
			log.Warn().Err(err).Msg("audit database connection failed, audit trail disabled")
		} else {
			recorder = auditpg.NewRecorder(db)
			deps.AuditHealth = db.Health
			defer recorder.Close()
		}
	} else {
		log.Info().Msg("no audit database configured, audit trail disabled")
	}
	// Every context opened from here on inherits the same audit recorder;
	// contexts opened via httpapi's /contexts endpoint get it wired in below.
	deps.DefaultAuditRecorder = recorder

	router := httpapi.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down policyguardd")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if deps.StopRateLimiter != nil {
			deps.StopRateLimiter()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("policyguardd stopped")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	configureLogging(debug)

	path := args[0]
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	df, err := policyio.UnmarshalDataFrameJSON(body)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if _, err := monitor.InitMonitor(); err != nil {
		return fmt.Errorf("initializing monitor: %w", err)
	}
	m, err := monitor.Get()
	if err != nil {
		return err
	}

	id := m.OpenNew(monitor.Options{})
	defer m.Drop(id)

	c, err := m.Context(id)
	if err != nil {
		return err
	}

	dfID := c.RegisterPolicyDataFrame(df)
	if err := c.Finalize(dfID); err != nil {
		fmt.Printf("BLOCKED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("CLEAN: no undischarged obligations remain")
	return nil
}

func configureLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
