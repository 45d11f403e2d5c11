package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tulusdeveloper/new-medical-ui/internal/config"
	"github.com/tulusdeveloper/new-medical-ui/internal/console"
	"github.com/tulusdeveloper/new-medical-ui/internal/domain/patient"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/auth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/db"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/events"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/gateway"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/reauth"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/sandbox"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "backoffice",
		Short:        "Hospital back-office console",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(sandboxCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(statusCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the back-office console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Start a local API the console can talk to",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetBool("seed")
			return runSandbox(cmd.Context(), seed)
		},
	}
	cmd.Flags().Bool("seed", true, "Generate sample data when the store is empty")
	return cmd
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			return runLogin(cmd.Context(), cmd.OutOrStdout(), username, password)
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username or email")
	cmd.Flags().StringP("password", "p", "", "Password (prompted when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sess, err := openSession(cfg, newLogger(cfg, os.Stderr))
			if err != nil {
				return err
			}
			if err := sess.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sess, err := openSession(cfg, newLogger(cfg, os.Stderr))
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), sess, time.Now())
			return nil
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sess, err := openSession(cfg, logger)
	if err != nil {
		return err
	}

	app := console.New(sess, console.Options{
		APIURL:          cfg.APIURL,
		HTTPTimeout:     cfg.HTTPTimeout,
		RequestTimeout:  cfg.HTTPTimeout,
		SearchDebounce:  cfg.SearchDebounce,
		PatientPageSize: cfg.PatientPageSize,
	}, logger)
	defer app.Close()

	logger.Info().Str("api_url", cfg.APIURL).Bool("authenticated", sess.IsAuthenticated()).Msg("console ready")
	return serve(app.Handler(), ":"+cfg.Port, logger)
}

func runSandbox(ctx context.Context, seed bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout).With().Str("component", "sandbox").Logger()
	if err := cfg.ValidateSandbox(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	envelope, err := sandbox.ParseEnvelope(cfg.SandboxEnvelope)
	if err != nil {
		return err
	}

	store, pool, err := openSandboxStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	if seed {
		if err := seedIfEmpty(ctx, store, cfg, logger); err != nil {
			return err
		}
	}

	srv := sandbox.NewServer(store, sandbox.Config{
		Username: cfg.SandboxUsername,
		Password: cfg.SandboxPassword,
		JWT: auth.JWTConfig{
			Issuer:     "sandbox",
			SigningKey: cfg.SigningKey(),
			TTL:        cfg.SandboxTokenTTL,
		},
		Envelope: envelope,
	}, logger)

	e := srv.Handler()
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	return serve(e, ":"+cfg.SandboxPort, logger)
}

// openSandboxStore uses PostgreSQL when DATABASE_URL is set and an
// in-memory store otherwise. The pool is nil for the memory store.
func openSandboxStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sandbox.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("using in-memory store")
		return sandbox.NewMemoryStore(), nil, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	store, err := sandbox.NewPGStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Msg("using postgres store")
	return store, pool, nil
}

func seedIfEmpty(ctx context.Context, store sandbox.Store, cfg *config.Config, logger zerolog.Logger) error {
	existing, err := store.List(ctx, patient.Path)
	if err != nil {
		return fmt.Errorf("inspect store: %w", err)
	}
	if len(existing) > 0 {
		logger.Info().Int("patients", len(existing)).Msg("store already has data, skipping seed")
		return nil
	}

	seedCfg := sandbox.DefaultSeedConfig()
	seedCfg.PatientCount = cfg.SandboxPatients
	seedCfg.Seed = cfg.SandboxSeed
	result, err := sandbox.NewSeeder(store, seedCfg).Generate(ctx)
	if err != nil {
		return fmt.Errorf("seed sandbox: %w", err)
	}
	logger.Info().Int("total", result.TotalResources).Dur("duration", result.Duration).Msg("sandbox seeded")
	return nil
}

func runLogin(ctx context.Context, out io.Writer, username, password string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if username == "" || password == "" {
		if err := promptCredentials(&username, &password); err != nil {
			return err
		}
	}
	if username == "" || password == "" {
		return errors.New(reauth.MsgMissingCredentials)
	}

	sess, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	client := gateway.New(cfg.APIURL, sess, events.NewNotifier(), logger, gateway.WithTimeout(cfg.HTTPTimeout))
	token, err := client.Login(ctx, username, password)
	if err != nil {
		return errors.New(reauth.LoginMessage(err))
	}
	if err := sess.SetToken(token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s.\n", sess.Subject())
	return nil
}

func promptCredentials(username, password *string) error {
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(username),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	*username = strings.TrimSpace(*username)
	return nil
}

func printStatus(out io.Writer, sess *session.Store, now time.Time) {
	if !sess.IsAuthenticated() {
		fmt.Fprintln(out, "Not logged in.")
		return
	}
	subject := sess.Subject()
	if subject == "" {
		subject = "unknown user"
	}
	exp, ok := sess.ExpiresAt()
	exp = exp.UTC()
	switch {
	case !ok:
		fmt.Fprintf(out, "Logged in as %s.\n", subject)
	case now.After(exp):
		fmt.Fprintf(out, "Logged in as %s, session expired at %s.\n", subject, exp.Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "Logged in as %s until %s.\n", subject, exp.Format(time.RFC3339))
	}
}

func openSession(cfg *config.Config, logger zerolog.Logger) (*session.Store, error) {
	path := cfg.SessionFile
	if path == "" {
		path = session.DefaultPath()
	}
	storage, err := session.NewFileStorage(path)
	if err != nil {
		return nil, err
	}
	sess := session.NewStore(storage, logger)
	if err := sess.Init(); err != nil {
		return nil, err
	}
	return sess, nil
}

// newLogger writes JSON, or console output in development, at LOG_LEVEL.
// An unknown level falls back to info.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	w := out
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: out}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// serve runs e on addr until SIGINT or SIGTERM, then drains in-flight
// requests.
func serve(e *echo.Echo, addr string, logger zerolog.Logger) error {
	e.HideBanner = true
	e.HidePort = true

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
