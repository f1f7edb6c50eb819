package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketpipe/cache"
	"marketpipe/config"
	"marketpipe/database"
)

// Service names accepted on the command line. "all" runs the full pipeline in
// one process; a single name runs that daemon alone so the pipeline can be
// split across processes.
const (
	RunAll             = "all"
	RunAggregator      = "aggregator"
	RunStrategyRunner  = "strategy_runner"
	RunExecutionEngine = "execution_engine"
	RunFakeBroker      = "fake_broker"
	RunHealthMonitor   = "health_monitor"
)

// KnownService reports whether name selects a runnable daemon set
func KnownService(name string) bool {
	switch name {
	case RunAll, RunAggregator, RunStrategyRunner, RunExecutionEngine, RunFakeBroker, RunHealthMonitor:
		return true
	}
	return false
}

// daemon is the common Start/Stop shape of the pipeline services
type daemon interface {
	Start()
	Stop()
}

// App wires the shared infrastructure and supervises the selected daemons
type App struct {
	config  *config.Config
	service string

	db      *database.Database
	redis   *cache.RedisClient
	repo    *database.Repository
	symbols *cache.SymbolCache

	daemons []daemon
}

// New creates a new application instance running the given service selection
func New(cfg *config.Config, service string) *App {
	return &App{
		config:  cfg,
		service: service,
	}
}

// Start connects the infrastructure, launches the selected daemons and blocks
// until an interrupt triggers graceful shutdown
func (a *App) Start() error {
	fmt.Println("🗄️  Connecting to database...")
	db, err := database.Connect(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	a.repo = database.NewRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	if err := a.repo.Positions.EnsureAccount(a.config.Pipeline.InitialEquity); err != nil {
		return fmt.Errorf("account seeding failed: %w", err)
	}
	if _, err := a.repo.Control.GetTradingControl(); err != nil {
		return fmt.Errorf("trading control seeding failed: %w", err)
	}

	a.symbols = cache.NewSymbolCache(a.redis, a.repo.Symbols)

	syms, err := a.repo.Symbols.ListAll()
	if err != nil {
		return fmt.Errorf("symbol load failed: %w", err)
	}
	log.Printf("📋 Tracking %d symbol(s)", len(syms))

	a.buildDaemons()
	if len(a.daemons) == 0 {
		return fmt.Errorf("unknown service %q", a.service)
	}

	go serveMetrics(a.config.MetricsPort)

	log.Printf("🚀 Starting %d daemon(s) for service %q", len(a.daemons), a.service)
	for _, d := range a.daemons {
		go d.Start()
	}

	return a.gracefulShutdown()
}

// buildDaemons constructs the daemon set for the selected service
func (a *App) buildDaemons() {
	cfg := a.config.Pipeline

	add := func(want string, build func() daemon) {
		if a.service == RunAll || a.service == want {
			a.daemons = append(a.daemons, build())
		}
	}

	add(RunAggregator, func() daemon { return NewAggregator(a.repo, a.symbols, cfg) })
	add(RunStrategyRunner, func() daemon { return NewStrategyRunner(a.repo, a.symbols, cfg) })
	add(RunExecutionEngine, func() daemon { return NewExecutionEngine(a.repo, cfg) })
	add(RunFakeBroker, func() daemon { return NewFakeBroker(a.repo, a.symbols, cfg) })
	add(RunHealthMonitor, func() daemon { return NewHealthMonitor(a.repo, cfg) })
}

// gracefulShutdown waits for an interrupt, then stops the daemons and closes
// the connections within a timeout
func (a *App) gracefulShutdown() error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	shutdownComplete := make(chan struct{})
	go func() {
		for _, d := range a.daemons {
			d.Stop()
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-time.After(10 * time.Second):
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
