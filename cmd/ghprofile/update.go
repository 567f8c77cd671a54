package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/ghprofile/internal/config"
	"github.com/nao1215/ghprofile/internal/database"
	"github.com/nao1215/ghprofile/internal/log"
	"github.com/nao1215/ghprofile/internal/model"
	"github.com/nao1215/ghprofile/internal/pipeline"
	"github.com/nao1215/ghprofile/internal/profileapi"
	"github.com/nao1215/ghprofile/internal/report"
	"github.com/nao1215/ghprofile/internal/tor"
	"github.com/nao1215/ghprofile/internal/transport"
	"github.com/nao1215/ghprofile/internal/updater"
	"github.com/spf13/cobra"
)

// errRunFailed makes the process exit non-zero after the report was printed.
var errRunFailed = errors.New("profile update failed")

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the profile bio and README",
		Long: `Update changes the bio and the profile README of a GitHub account.

A run first checks that the API is reachable. It then verifies the token,
updates the bio when --bio is given, and creates or updates the README when
--readme is given. With --tor or --embedded-tor every request goes through
Tor and a new Tor identity is requested at the end of the run.

The token is read from --token, GHPROFILE_TOKEN or GITHUB_TOKEN, in that order.

Examples:
  # Update the bio and the profile README (repository octocat/octocat)
  ghprofile update -u octocat --bio "Hello" --readme ./README.md

  # Same, through a local Tor proxy
  ghprofile update -u octocat --bio "Hello" --tor

  # Preview the README change without writing anything
  ghprofile update -u octocat --readme ./README.md --dry-run

  # README kept in another repository
  ghprofile update -u octocat --readme ./README.md --repo my-org/profile`,
		Args: cobra.NoArgs,
		RunE: runUpdateCmd,
	}

	cmd.Flags().StringP(config.FlagUsername, "u", "", "Account whose profile is updated")
	cmd.Flags().String("token", "", "API token (default: $GHPROFILE_TOKEN or $GITHUB_TOKEN)")
	cmd.Flags().StringP(config.FlagBio, "b", "", "New profile bio (empty keeps the current bio)")
	cmd.Flags().Bool("normalize-bio", false, "Send the bio in Unicode NFC instead of exactly as given")
	cmd.Flags().StringP(config.FlagReadme, "r", "", "Local README file to publish")
	cmd.Flags().String(config.FlagRepo, "", `Repository holding the README, "name" or "owner/name" (default: the username)`)
	cmd.Flags().String(config.FlagAPIURL, config.DefaultAPIBaseURL, "REST API root, for GitHub Enterprise Server")

	cmd.Flags().Bool(config.FlagTor, false, "Route every request through the Tor SOCKS5 proxy")
	cmd.Flags().Bool(config.FlagEmbeddedTor, false, "Start a private Tor daemon and route every request through it")
	cmd.Flags().String(config.FlagSocks, config.DefaultTorProxyAddress, "Tor SOCKS5 proxy address")
	cmd.Flags().String(config.FlagControl, config.DefaultTorControlAddress, "Tor control port address")
	cmd.Flags().String(config.FlagControlPassword, "",
		"Tor control port password (default: $"+config.EnvControlPassword+")")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each HTTP request")
	cmd.Flags().Bool("fail-fast", false, "Stop at the first failed step")
	cmd.Flags().BoolP("dry-run", "n", false, "Read the remote state and show what would change")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .ghprofile in current or home directory)")
	cmd.Flags().String("log-dir", config.XDGLogDir(), "Directory of the per-run log file")
	cmd.Flags().Bool("no-log-file", false, "Do not write a per-run log file")
	cmd.Flags().Bool("no-history", false, "Do not store the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")
	cmd.Flags().String("report-format", config.ReportFormatSimple, "Report format: simple, markdown or json")
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")

	return cmd
}

func runUpdateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runReport, err := runUpdate(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if !runReport.Succeeded() {
		return errRunFailed
	}
	return nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig merges flags, the config file and the environment.
// Flags given explicitly win over the file, which wins over flag defaults.
func buildConfig(cmd *cobra.Command, getenv func(string) string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{config.FlagUsername, &cfg.Username},
		{config.FlagBio, &cfg.Bio},
		{config.FlagReadme, &cfg.ReadmePath},
		{config.FlagRepo, &cfg.Repository},
		{config.FlagAPIURL, &cfg.APIBaseURL},
		{config.FlagSocks, &cfg.TorProxyAddress},
		{config.FlagControl, &cfg.TorControlAddress},
		{config.FlagControlPassword, &cfg.TorControlPassword},
		{"config", &cfg.ConfigFilePath},
		{"log-dir", &cfg.LogDir},
		{"db-dir", &cfg.DBDir},
		{"report-format", &cfg.ReportFormat},
		{"output", &cfg.ReportFile},
	}
	for _, s := range stringFlags {
		if *s.dst, err = flags.GetString(s.name); err != nil {
			return nil, err
		}
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{config.FlagTor, &cfg.UseTor},
		{config.FlagEmbeddedTor, &cfg.EmbeddedTor},
		{"fail-fast", &cfg.FailFast},
		{"dry-run", &cfg.DryRun},
		{"normalize-bio", &cfg.NormalizeBio},
		{"no-log-file", &cfg.NoLogFile},
	}
	for _, b := range boolFlags {
		if *b.dst, err = flags.GetBool(b.name); err != nil {
			return nil, err
		}
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit --config must exist; the implicit search may find nothing.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg, flags.Changed)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	token, err := flags.GetString("token")
	if err != nil {
		return nil, err
	}
	cfg.Token = config.ResolveToken(token, getenv)

	if cfg.TorControlPassword == "" && getenv != nil {
		cfg.TorControlPassword = getenv(config.EnvControlPassword)
	}
	if cfg.EmbeddedTor {
		cfg.UseTor = true
	}

	return cfg, nil
}

// runUpdate performs one run and writes its report. The returned error is
// reserved for setup problems; step failures live in the report.
func runUpdate(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*model.RunReport, error) {
	printBanner(stderr, cfg)

	var logFile io.Writer
	if !cfg.NoLogFile {
		f, err := log.CreateLogFile(cfg.LogDir, time.Now())
		if err != nil {
			return nil, err
		}
		defer f.Close()
		logFile = f
	}
	logger := log.NewRunLogger(stderr, logFile, cfg.Verbose)

	logger.Debug("starting run",
		"username", cfg.Username,
		"anonymized", cfg.Anonymized(),
		"dryRun", cfg.DryRun,
		"failFast", cfg.FailFast,
	)

	tr, rotator, cleanup, err := selectTransport(ctx, cfg, logger, stderr)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	api, err := profileapi.New(tr, cfg.Token,
		profileapi.WithBaseURL(cfg.APIBaseURL),
		profileapi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	u := updater.New(api, tr, cfg.Username,
		updater.WithLogger(logger),
		updater.WithGateURL(api.BaseURL()),
		updater.WithDocumentPath(cfg.DocumentPath),
		updater.WithCommitMessages(cfg.CreateMessage, cfg.UpdateMessage),
		updater.WithDryRun(cfg.DryRun),
		updater.WithBioNormalization(cfg.NormalizeBio),
	)

	runReport := model.NewRunReport(cfg.Username)
	runReport.Transport = tr.Name()
	runReport.Anonymized = cfg.Anonymized()
	runReport.DryRun = cfg.DryRun
	if cfg.ReadmePath != "" {
		runReport.Repository = u.RepositoryName(cfg.Repository)
	}

	p := pipeline.NewRunPipeline(u, rotator, pipeline.Plan{
		Bio:        cfg.Bio,
		ReadmePath: cfg.ReadmePath,
		Repository: cfg.Repository,
		GateURL:    api.BaseURL(),
	},
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(!cfg.FailFast),
	)

	if err := p.Execute(ctx, runReport); err != nil {
		logger.Debug("run finished with errors", "error", err)
	}
	runReport.Finish()

	if err := writeReport(cfg, runReport, stdout); err != nil {
		logger.Error("failed to write report", "error", err)
	}

	// The run happened even if it was interrupted, so record it regardless.
	saveHistory(context.WithoutCancel(ctx), cfg, runReport, logger)

	return runReport, nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	mode := "direct"
	switch {
	case cfg.EmbeddedTor:
		mode = "tor (embedded daemon)"
	case cfg.UseTor:
		mode = "tor via " + cfg.TorProxyAddress
	}

	fmt.Fprintf(w, "ghprofile %s\n", getVersion())
	fmt.Fprintf(w, "  user:      %s\n", cfg.Username)
	fmt.Fprintf(w, "  transport: %s\n", mode)
	if cfg.DryRun {
		fmt.Fprintln(w, "  dry run:   nothing will be written")
	}
	fmt.Fprintln(w)
}

// selectTransport picks the transport for the whole run. The rotator is nil
// when traffic is not anonymized. cleanup is never nil.
func selectTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (transport.Transport, pipeline.IdentityRotator, func(), error) {
	noop := func() {}

	if !cfg.Anonymized() {
		return transport.NewDirect(cfg.Timeout, logger), nil, noop, nil
	}

	torOpts := []tor.TransportOption{
		tor.WithControlPassword(cfg.TorControlPassword),
		tor.WithLogger(logger),
	}

	if cfg.EmbeddedTor {
		embedded, err := startEmbeddedTor(ctx, cfg, logger, stderr)
		if err != nil {
			return nil, nil, noop, err
		}
		stopEmbedded := func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}

		tr, err := embedded.NewTransport(cfg.Timeout, torOpts...)
		if err != nil {
			stopEmbedded()
			return nil, nil, noop, fmt.Errorf("failed to create Tor transport: %w", err)
		}
		return tr, tr, stopEmbedded, nil
	}

	client, err := tor.NewClient(cfg.TorProxyAddress, cfg.Timeout)
	if err != nil {
		return nil, nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
	}

	// The connectivity gate decides the run; this only makes the cause obvious.
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		logger.Warn("Tor proxy check failed", "address", cfg.TorProxyAddress, "status", status.String())
	} else {
		logger.Info("Tor proxy connection verified", "address", cfg.TorProxyAddress)
	}

	torOpts = append(torOpts, tor.WithControlAddress(cfg.TorControlAddress))
	tr, err := tor.NewTransport(client, torOpts...)
	if err != nil {
		return nil, nil, noop, fmt.Errorf("failed to create Tor transport: %w", err)
	}
	return tr, tr, noop, nil
}

func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*tor.EmbeddedTor, error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embedded.SocksAddr(),
		"controlAddr", embedded.ControlAddr(),
	)
	return embedded, nil
}

// newReportWriter returns the writer for cfg.ReportFormat.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch cfg.ReportFormat {
	case config.ReportFormatJSON:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case config.ReportFormatMarkdown:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// writeReport writes the report to cfg.ReportFile, or stdout when unset.
func writeReport(cfg *config.Config, runReport *model.RunReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports name the account and repositories: owner-only permissions.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg, output).Write(runReport)
	return err
}

// saveHistory stores the run when history is enabled. Failures are logged only.
func saveHistory(ctx context.Context, cfg *config.Config, runReport *model.RunReport, logger *slog.Logger) {
	if !cfg.SaveHistory {
		return
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("failed to open history database", "dir", cfg.DBDir, "error", err)
		return
	}
	defer db.Close()

	if err := db.SaveRun(ctx, runReport); err != nil {
		logger.Warn("failed to save run", "error", err)
		return
	}
	logger.Debug("run saved to history", "id", runReport.ID, "db", db.Path())
}
