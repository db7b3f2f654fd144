package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/repositories"
	"github.com/desertthunder/gphotos-backup/internal/services"
	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// LedgerOpener opens the ledger described by the configuration.
type LedgerOpener func(config *shared.Config) (*repositories.Ledger, error)

// CatalogFactory builds an authorized remote catalog client.
type CatalogFactory func(ctx context.Context, config *shared.Config, logger *log.Logger) (services.Catalog, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	logCloser  io.Closer
	output     io.Writer
	openLedger LedgerOpener
	newCatalog CatalogFactory
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag before any command runs.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	OpenLedger LedgerOpener
	NewCatalog CatalogFactory
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenLedger == nil {
		opts.OpenLedger = openLedger
	}
	if opts.NewCatalog == nil {
		opts.NewCatalog = newPhotosCatalog
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		openLedger: opts.OpenLedger,
		newCatalog: opts.NewCatalog,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, organizeCommand, verifyCommand,
		albumsCommand, statusCommand, ledgerCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration and applies the logging settings.
//
// A missing config file is not an error; the embedded defaults are used instead.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.config == nil {
		config, err := loadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	level, err := r.config.LogLevel()
	if err != nil {
		return ctx, err
	}
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}

	if path := r.config.Logging.File; path != "" && r.logCloser == nil {
		logger, closer, err := shared.NewFileLogger(path, true)
		if err != nil {
			return ctx, err
		}
		r.SetLogger(logger)
		r.logCloser = closer
	}
	shared.SetLogLevel(r.logger, level)

	return ctx, nil
}

// After releases the log file, if one was opened.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	if r.logCloser == nil {
		return nil
	}
	err := r.logCloser.Close()
	r.logCloser = nil
	return err
}

// SetLogger replaces the logger used by subsequent commands.
func (r *Runner) SetLogger(logger *log.Logger) {
	if r.logger != nil {
		logger.SetLevel(r.logger.GetLevel())
	}
	r.logger = logger
}

func loadConfig(path string) (*shared.Config, error) {
	if path == "" {
		return shared.DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return shared.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	return config, nil
}

func openLedger(config *shared.Config) (*repositories.Ledger, error) {
	return repositories.Open(config.Database.Path, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
}

// newPhotosCatalog builds the Photos Library client from the stored OAuth token.
func newPhotosCatalog(ctx context.Context, config *shared.Config, logger *log.Logger) (services.Catalog, error) {
	oauthConfig, err := services.NewGoogleOAuthConfig(config.Credentials.Google)
	if err != nil {
		return nil, err
	}

	store := services.NewTokenStore(config.Credentials.Google.TokenPath)
	// Token refreshes must survive the cancellation that interrupts a sync.
	client, err := services.NewAuthorizedClient(context.WithoutCancel(ctx), oauthConfig, store, config.API.Timeout.Duration)
	if err != nil {
		return nil, err
	}

	policy := services.DefaultRetryPolicy()
	policy.MaxAttempts = config.API.MaxAttempts
	if config.API.BackoffBase.Duration > 0 {
		policy.BaseDelay = config.API.BackoffBase.Duration
	}
	if config.API.BackoffCap.Duration > 0 {
		policy.MaxDelay = config.API.BackoffCap.Duration
	}

	return services.NewPhotosService(client, services.PhotosOpts{
		BaseURL:           config.API.BaseURL,
		PageSize:          config.API.PageSize,
		AlbumPageSize:     config.API.AlbumPageSize,
		RequestsPerSecond: config.API.RequestsPerSecond,
		Retry:             policy.WithLogger(logger),
		Logger:            logger,
	}), nil
}

// backupFS returns the backup root, creating the directory when needed.
func backupFS(dir string) (billy.Filesystem, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: backup directory is empty", shared.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return osfs.New(dir), nil
}

// withLedger opens the ledger for the duration of fn.
func (r *Runner) withLedger(fn func(*repositories.Ledger) error) error {
	ledger, err := r.openLedger(r.config)
	if err != nil {
		return err
	}
	defer ledger.Close()

	return fn(ledger)
}

// withLock holds the single-instance lock for the duration of fn.
func (r *Runner) withLock(fn func() error) error {
	lock, err := shared.AcquireLock(r.config.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("failed to release lock", "path", lock.Path(), "error", err)
		}
	}()

	return fn()
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
