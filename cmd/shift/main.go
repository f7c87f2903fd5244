package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirajehossain/shift/internal/config"
	"github.com/mirajehossain/shift/internal/db"
	"github.com/mirajehossain/shift/internal/logger"
	"github.com/mirajehossain/shift/internal/metrics"
	"github.com/mirajehossain/shift/internal/migrator"
)

const (
	exitOK          = 0
	exitConsistency = 2
	exitPending     = 3
	exitFail        = 4
	exitPlanError   = 5
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type flags struct {
	conf      string
	typ       string
	yes       bool
	watch     bool
	overrides func(*config.Config)
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	global := flag.NewFlagSet("shift", flag.ContinueOnError)
	global.SetOutput(stderr)
	conf := global.String("config", "", "Optional YAML config path")
	driver := global.String("driver", "", "cassandra, mysql or sqlite (or SHIFT_DRIVER)")
	hosts := global.String("hosts", "", "Comma separated cassandra hosts (or SHIFT_HOSTS)")
	port := global.Int("port", 0, "Cassandra native port")
	username := global.String("username", "", "Cassandra username")
	password := global.String("password", "", "Cassandra password")
	dsn := global.String("dsn", "", "MySQL/SQLite DSN (or DB_DSN)")
	keyspace := global.String("keyspace", "", "Keyspace or database (or SHIFT_KEYSPACE)")
	ensure := global.Bool("ensure-keyspace", false, "Create the keyspace if missing")
	use := global.Bool("use-keyspace", false, "Switch to the keyspace before running")
	rf := global.Int("replication", 0, "Replication factor for created keyspaces")
	consistency := global.String("consistency", "", "Cassandra consistency (or SHIFT_CONSISTENCY)")
	timeout := global.Int("timeout", 0, "Driver timeout seconds (or SHIFT_TIMEOUT_SEC)")
	dir := global.String("dir", "", "Migrations directory (or MIGRATIONS_DIR)")
	table := global.String("table", "", "Migrations table name (or MIGRATIONS_TABLE)")
	jsonOut := global.Bool("json", false, "JSON logs and output")
	verbose := global.Bool("verbose", false, "Debug logs")
	metricsFile := global.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	typ := global.String("type", "script", "create: script or go")
	yes := global.Bool("yes", false, "clean: confirm dropping the keyspace")
	watch := global.Bool("watch", false, "info: re-render when the migrations directory changes")

	if err := global.Parse(args); err != nil {
		return nil, err
	}
	if global.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", global.Args())
	}

	set := map[string]bool{}
	global.Visit(func(f *flag.Flag) { set[f.Name] = true })

	return &flags{
		conf:  *conf,
		typ:   *typ,
		yes:   *yes,
		watch: *watch,
		overrides: func(cfg *config.Config) {
			if set["driver"] {
				cfg.Driver = *driver
			}
			if set["hosts"] {
				cfg.Hosts = config.SplitList(*hosts)
			}
			if set["port"] {
				cfg.Port = *port
			}
			if set["username"] {
				cfg.Username = *username
			}
			if set["password"] {
				cfg.Password = *password
			}
			if set["dsn"] {
				cfg.DSN = *dsn
			}
			if set["keyspace"] {
				cfg.Keyspace = *keyspace
			}
			if set["ensure-keyspace"] {
				cfg.EnsureKeyspace = *ensure
			}
			if set["use-keyspace"] {
				cfg.UseKeyspace = *use
			}
			if set["replication"] {
				cfg.ReplicationFactor = *rf
			}
			if set["consistency"] {
				cfg.Consistency = *consistency
			}
			if set["timeout"] {
				cfg.TimeoutSec = *timeout
			}
			if set["dir"] {
				cfg.Dir = *dir
			}
			if set["table"] {
				cfg.MigrationsTable = *table
			}
			if set["json"] {
				cfg.JSON = *jsonOut
			}
			if set["verbose"] {
				cfg.Verbose = *verbose
			}
			if set["metrics-file"] {
				cfg.MetricsFile = *metricsFile
			}
		},
	}, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stdout)
		return exitOK
	}
	cmd := args[0]

	argStart := 1
	switch cmd {
	case "migrate", "validate", "info", "clean":
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "create requires a <name>")
			return exitPlanError
		}
		argStart = 2
	default:
		usage(stderr)
		return exitPlanError
	}

	fl, err := parseFlags(args[argStart:], stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitPlanError
	}

	// defaults, then YAML, then env, then flags
	cfg, err := config.LoadYAML(fl.conf)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitPlanError
	}
	cfg = config.MergeEnv(cfg)
	fl.overrides(cfg)

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := logger.NewWithWriter(stderr, cfg.JSON, level)

	if cmd == "create" {
		path, err := create(cfg.Dir, args[1], fl.typ, cfg.Driver)
		if err != nil {
			log.Error("create failed", map[string]any{"error": err.Error()})
			return exitFail
		}
		log.Info("created migration", map[string]any{"path": path})
		fmt.Fprintln(stdout, path)
		return exitOK
	}
	if cmd == "clean" && !fl.yes {
		fmt.Fprintln(stderr, "clean drops the whole keyspace; pass --yes to confirm")
		return exitPlanError
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", map[string]any{"error": err.Error()})
		return exitPlanError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := openBackend(cfg)
	if err != nil {
		log.Error("db open failed", map[string]any{"driver": cfg.Driver, "error": err.Error()})
		return exitFail
	}
	defer conn.close()

	var collector *metrics.Collector
	options := []migrator.Option{
		migrator.WithLogger(log.Slog()),
		migrator.WithObserver(migrator.ObserverFunc(func(e migrator.Event) {
			log.Debug("event", map[string]any{"event": string(e.Kind), "run_id": e.RunID, "keyspace": e.Keyspace})
		})),
	}
	if cfg.MetricsFile != "" {
		collector = metrics.NewCollector()
		options = append(options, migrator.WithObserver(collector))
	}
	defer func() {
		if collector == nil {
			return
		}
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("writing metrics failed", map[string]any{"path": cfg.MetricsFile, "error": err.Error()})
		}
	}()

	sh, err := migrator.New([]migrator.Session{conn.session}, conn.admin, migrator.Options{
		Keyspace:       cfg.Keyspace,
		EnsureKeyspace: cfg.EnsureKeyspace,
		UseKeyspace:    cfg.UseKeyspace,
		Dir:            cfg.Dir,
		MigrationTable: cfg.MigrationsTable,
	}, options...)
	if err != nil {
		log.Error("invalid options", map[string]any{"error": err.Error()})
		return exitPlanError
	}

	switch cmd {
	case "migrate":
		written, err := sh.Migrate(ctx)
		if err != nil {
			log.Error("migrate failed", map[string]any{"error": err.Error()})
			return exitCode(err)
		}
		if len(written) == 0 {
			log.Info("no pending migrations", nil)
			return exitOK
		}
		log.Info("migrate complete", map[string]any{"applied": len(written)})
		return exitOK
	case "validate":
		if _, err := sh.Validate(ctx, true); err != nil {
			log.Error("validation failed", map[string]any{"error": err.Error()})
			return exitCode(err)
		}
		log.Info("migrations are valid", nil)
		return exitOK
	case "info":
		if fl.watch {
			if err := watchInfo(ctx, sh, cfg.Dir, stdout, cfg.JSON, log); err != nil {
				log.Error("watch failed", map[string]any{"error": err.Error()})
				return exitCode(err)
			}
			return exitOK
		}
		slots, err := sh.Info(ctx)
		if err != nil {
			log.Error("info failed", map[string]any{"error": err.Error()})
			return exitCode(err)
		}
		if err := printInfo(stdout, slots, cfg.JSON); err != nil {
			log.Error("info failed", map[string]any{"error": err.Error()})
			return exitFail
		}
		return exitOK
	case "clean":
		if err := sh.Clean(ctx); err != nil {
			log.Error("clean failed", map[string]any{"error": err.Error()})
			return exitFail
		}
		return exitOK
	}
	return exitOK
}

// exitCode maps an engine error to the CLI exit status.
func exitCode(err error) int {
	var (
		ce *migrator.ConsistencyError
		de *migrator.DiscoveryError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce):
		return exitConsistency
	case errors.Is(err, migrator.ErrPendingMigrations):
		return exitPending
	case errors.As(err, &de):
		return exitPlanError
	default:
		return exitFail
	}
}

type backend struct {
	session migrator.Session
	admin   migrator.Admin
	close   func()
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Driver {
	case config.DriverCassandra:
		c, err := db.OpenCassandra(db.CassandraOptions{
			Hosts:             cfg.Hosts,
			Port:              cfg.Port,
			Username:          cfg.Username,
			Password:          cfg.Password,
			Consistency:       cfg.Consistency,
			Timeout:           cfg.Timeout(),
			ReplicationFactor: cfg.ReplicationFactor,
		})
		if err != nil {
			return nil, err
		}
		return &backend{session: c, admin: c, close: c.Close}, nil
	case config.DriverMySQL, config.DriverSQLite:
		open, wrap := db.OpenMySQL, db.NewMySQL
		if cfg.Driver == config.DriverSQLite {
			open, wrap = db.OpenSQLite, db.NewSQLite
		}
		pool, err := open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		s := wrap(pool)
		return &backend{session: s, admin: s, close: func() {
			_ = s.Close()
			_ = pool.Close()
		}}, nil
	}
	return nil, fmt.Errorf("%w: %q", db.ErrUnknownDriver, cfg.Driver)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `shift - migration runner for Cassandra, MySQL and SQLite

USAGE:
  shift <command> [args] [--flags]

COMMANDS:
  migrate                   Apply all pending migrations in version order
  validate                  Check the ledger against the migrations directory
  info                      Show the state of every migration (--json, --watch)
  clean --yes               Drop and recreate the keyspace
  create <name>             Scaffold <next-version>__<name>.cql (--type go for executable)

GLOBAL FLAGS:
  --config <path>           Optional YAML config path
  --driver <name>           cassandra (default), mysql or sqlite
  --hosts <a,b>             Cassandra contact points (default 127.0.0.1)
  --dsn <dsn>               MySQL/SQLite DSN (or DB_DSN)
  --keyspace <name>         Keyspace or database
  --ensure-keyspace         Create the keyspace when missing
  --use-keyspace            Switch to the keyspace first
  --dir <path>              Migrations directory (default ./migrations)
  --table <name>            Ledger table (default migration_history)
  --json                    JSON logs and info output
  --verbose                 Debug logs
  --metrics-file <path>     Write Prometheus metrics after the run

EXIT CODES:
  0 ok, 2 consistency error, 3 pending migrations, 4 execution failure, 5 configuration error

EXAMPLES:
  shift migrate --hosts 10.0.0.1,10.0.0.2 --keyspace app --ensure-keyspace --use-keyspace
  shift validate --driver mysql --dsn "$DB_DSN" --dir ./migrations
  shift info --driver sqlite --dsn ./app.db --json
  shift create add_user_table --dir ./migrations`)
}
