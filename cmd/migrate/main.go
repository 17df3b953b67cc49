package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
)

func main() {
	flag.Usage = func() {
		log.Println("usage: migrate [up|down|version]")
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PoolOptions())
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	switch command {
	case "up":
		err = db.Migrate(ctx, pool)
	case "down":
		err = db.MigrateDown(ctx, pool)
	case "version":
	default:
		flag.Usage()
		logger.Fatal("unknown command", zap.String("command", command))
	}
	if err != nil {
		logger.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}

	version, err := db.MigrationVersion(ctx, pool)
	if err != nil {
		logger.Fatal("read schema version", zap.Error(err))
	}
	logger.Info("schema version", zap.Int64("version", version))
}
