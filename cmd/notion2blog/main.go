package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/notion2blog/internal/config"
	"github.com/schaermu/notion2blog/internal/forge"
	"github.com/schaermu/notion2blog/internal/git"
	"github.com/schaermu/notion2blog/internal/images"
	"github.com/schaermu/notion2blog/internal/notion"
	"github.com/schaermu/notion2blog/internal/publish"
	"github.com/schaermu/notion2blog/internal/trigger"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "notion2blog",
	Short: "Publish Notion database pages as blog posts via pull requests",
	Long: `notion2blog reads the eligible pages of a Notion database, converts them to
markdown posts with front matter and proposes each new or changed post as a
pull request against a git-hosted blog repository.

It can run as a oneshot sync (via cron or a systemd timer) or as a long-running
trigger server that syncs whenever it receives a signed request.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time sync from the Notion database to the blog repository",
	Long: `Sync lists the eligible pages of the configured database, converts each one to
a post and compares it with the post on its auto-generate branch.

Changed posts are committed with their images, pushed, and a pull request is
opened unless one is already open. Unchanged posts are skipped.`,
	RunE: runSync,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger server",
	Long: `Serve performs an initial sync and then listens for POST requests signed with
an HMAC-SHA256 of the body (header X-Signature-256: sha256=<hex>). Accepted
requests are debounced and run one sync at a time.

The server uses a systemd-activated socket when one is passed, otherwise it
listens on serve.listen_addr.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("notion2blog %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/notion2blog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be published without pushing or opening pull requests")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	runner, err := newRunner(cfg, logger, dryRun)
	if err != nil {
		return err
	}

	if _, err := runner.Run(ctx); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.TriggerEnabled() {
		return fmt.Errorf("serve.secret_file must be configured to run the trigger server")
	}

	runner, err := newRunner(cfg, logger, false)
	if err != nil {
		return err
	}

	server, err := trigger.NewServer(cfg.Serve.SecretFile, func(ctx context.Context) error {
		_, err := runner.Run(ctx)
		return err
	}, logger)
	if err != nil {
		return err
	}

	ln, err := trigger.Listen(cfg.Serve.ListenAddr)
	if err != nil {
		return err
	}

	return server.Serve(ctx, ln)
}

// newRunner wires the document source, converter, image downloader, git
// client and forge into a publish runner.
func newRunner(cfg *config.Config, logger *slog.Logger, dryRun bool) (*publish.Runner, error) {
	notionClient, err := notion.NewClient(cfg.Notion.BaseURL, cfg.Notion.Token, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create notion client: %w", err)
	}
	source := notion.NewSource(notionClient.Database, cfg.Props, cfg.Location(), logger)
	renderer := notion.NewRenderer(notionClient.Block)

	var forgeOpts []forge.Option
	if cfg.GitHub.APIURL != "" {
		forgeOpts = append(forgeOpts, forge.WithBaseURL(cfg.GitHub.APIURL))
	}
	forgeClient, err := forge.NewClient(cfg.GitHub.PAT, cfg.RepoOwner(), cfg.RepoName(), forgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create forge client: %w", err)
	}

	gitClient := git.NewShellClient(gitCredentials(cfg))
	clone := func(ctx context.Context, url, dir string) (publish.Repository, error) {
		repo, err := gitClient.Clone(ctx, url, dir)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	processor := publish.NewProcessor(renderer, images.NewDownloader(nil, logger), forgeClient,
		cfg.Blog.AssetDir, cfg.Blog.PostDir, dryRun, logger)

	return publish.NewRunner(publish.Options{
		DatabaseID: cfg.Notion.DatabaseID,
		RepoURL:    cfg.GitHub.Repo,
		BaseBranch: cfg.GitHub.BaseBranch,
		WorkDir:    cfg.Sync.WorkDir,
		DryRun:     dryRun,
	}, source, processor, clone, forgeClient, logger), nil
}

// gitCredentials returns the ssh key for ssh remotes and the token for https
// remotes. The other value is empty.
func gitCredentials(cfg *config.Config) (sshKeyFile, token string) {
	switch {
	case cfg.IsSSH():
		return cfg.GitHub.SSHKeyFile, ""
	case cfg.IsHTTPS():
		return "", cfg.GitHub.PAT
	default:
		return "", ""
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/notion2blog/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"database_id", cfg.Notion.DatabaseID,
		"repo", cfg.GitHub.Repo,
		"base_branch", cfg.GitHub.BaseBranch,
		"post_dir", cfg.Blog.PostDir,
		"timezone", cfg.Sync.Timezone)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
