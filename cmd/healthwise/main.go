package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/database"
	"github.com/franckalain/healthwise/internal/flows"
	"github.com/franckalain/healthwise/internal/logging"
	"github.com/franckalain/healthwise/internal/ml"
	"github.com/franckalain/healthwise/internal/server"
	"github.com/franckalain/healthwise/internal/session"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "healthwise",
	Short: "HealthWise - personalized food safety scanner",
	Long: `HealthWise checks food products against your health profile.

Run "healthwise serve" to start the web app, or use the analyze, ask and
quote commands to call the assistant flows from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetConfigPath(), "path to configuration file (JSON or YAML)")
	rootCmd.AddCommand(serveCmd, analyzeCmd, askCmd, quoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openFlows loads the configured model and wraps it in the flow layer.
func openFlows(ctx context.Context) (*flows.Flows, func(), error) {
	model, err := ml.NewModel(cfg.ML)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ML model: %w", err)
	}
	if err := model.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to load ML model: %w", err)
	}
	cleanup := func() {
		if err := model.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ML model")
		}
	}
	return flows.New(ml.NewInvoker(model, cfg.ML.TimeoutDuration())), cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	store, err := database.NewStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	fl, closeModel, err := openFlows(ctx)
	if err != nil {
		return err
	}
	defer closeModel()

	sessions := session.NewManager(cfg.Server.SessionSecret, cfg.Server.SecureCookies)
	srv := server.New(cfg.Server, store, fl, sessions)
	return srv.Start(ctx)
}

// printJSON writes v to stdout, indented.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
