package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tgienger/checker/internal/config"
	"github.com/tgienger/checker/internal/db"
	"github.com/tgienger/checker/internal/db/postgres"
	"github.com/tgienger/checker/internal/docstore"
	"github.com/tgienger/checker/internal/metrics"
	"github.com/tgienger/checker/internal/mirror"
	"github.com/tgienger/checker/internal/models"
	"github.com/tgienger/checker/internal/repository"
	"github.com/tgienger/checker/internal/ui"
)

// globalOptions holds the persistent flags
type globalOptions struct {
	configPath string
	backend    string
	dbPath     string
	dsn        string
	role       string
	debug      bool
}

var opts globalOptions

// addStoreFlags registers the flags that select and configure the store
func addStoreFlags(fs *pflag.FlagSet, o *globalOptions) {
	fs.StringVar(&o.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/checker/config.toml)")
	fs.StringVar(&o.backend, "backend", "", "document store: sqlite, postgres or memory")
	fs.StringVar(&o.dbPath, "db", "", "sqlite database file")
	fs.StringVar(&o.dsn, "dsn", "", "postgres connection string")
	fs.StringVar(&o.role, "role", "", "your role: TeamLead or Creator")
	fs.BoolVar(&o.debug, "debug", false, "log store and mirror activity to stderr")
}

func configPath(o *globalOptions) (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command, o *globalOptions) (*config.Config, error) {
	path, err := configPath(o)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = o.backend
	}
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("dsn") {
		cfg.PostgresDSN = o.dsn
	}
	if flags.Changed("role") {
		cfg.Role = o.role
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// env is everything a command needs to talk to the store
type env struct {
	cfg      *config.Config
	role     models.Role
	logger   *log.Logger
	store    docstore.Store
	settings ui.Settings
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	repo     *repository.Repository
}

// openEnv loads config and opens the configured store. logger may be nil,
// in which case logs go to stderr with --debug and are dropped otherwise.
func openEnv(cmd *cobra.Command, logger *log.Logger) (*env, error) {
	cfg, err := loadConfig(cmd, &opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
		if opts.debug {
			logger = log.New(os.Stderr, "checker: ", log.LstdFlags|log.Lmicroseconds)
		}
	}

	store, settings, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	return &env{
		cfg:      cfg,
		role:     cfg.ParsedRole(),
		logger:   logger,
		store:    store,
		settings: settings,
		registry: reg,
		metrics:  m,
		repo:     repository.New(store, repository.WithLogger(logger), repository.WithMetrics(m)),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Printf("close store: %v", err)
	}
}

// openStore opens the backend named in cfg. Only sqlite keeps settings.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (docstore.Store, ui.Settings, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		database, err := db.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return database, database, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.BackendMemory:
		return docstore.NewMemory(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (e *env) mirrorOptions() []mirror.Option {
	return []mirror.Option{mirror.WithLogger(e.logger), mirror.WithMetrics(e.metrics)}
}

// requireTeamLead rejects actions reserved for team leads
func requireTeamLead(e *env, action string) error {
	if e.role != models.RoleTeamLead {
		return fmt.Errorf("only a TeamLead may %s (role is %s)", action, e.role)
	}
	return nil
}

func (e *env) findCustomer(ctx context.Context, id string) (*models.Customer, error) {
	customers, err := mirror.Load(ctx, e.store, mirror.DecodeCustomer, mirror.CustomerParams(), e.mirrorOptions()...)
	if err != nil {
		return nil, err
	}
	for _, c := range customers {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("customer %s: %w", id, docstore.ErrNotFound)
}

func (e *env) findProject(ctx context.Context, id string) (*models.Project, error) {
	docs, err := e.store.Query(ctx, models.CollectionProjects)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for _, doc := range docs {
		if doc.ID != id {
			continue
		}
		p, err := mirror.DecodeProject(doc)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", id, err)
		}
		return &p, nil
	}
	return nil, fmt.Errorf("project %s: %w", id, docstore.ErrNotFound)
}

func (e *env) findTask(ctx context.Context, id string) (*models.Task, error) {
	docs, err := e.store.Query(ctx, models.CollectionTasks)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	for _, doc := range docs {
		if doc.ID != id {
			continue
		}
		t, err := mirror.DecodeTask(doc)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", id, err)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("task %s: %w", id, docstore.ErrNotFound)
}

func requireName(kind, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s must not be blank", kind)
	}
	return nil
}
