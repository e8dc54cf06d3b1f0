package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/careforall/settlement/internal/bus"
	"github.com/careforall/settlement/internal/config"
	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/outbox"
	"github.com/careforall/settlement/internal/repo"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// The relay is its own process so it can be scaled horizontally; the
// SKIP LOCKED claim keeps concurrent instances off each other's rows.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("relay")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.OutboxEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	kb := bus.NewKafkaBus(cfg.Kafka.Brokers, log)
	defer kb.Close()

	repository := repo.NewRepository(gdb, nil, log)
	relay := outbox.New(repository, kb, log, outbox.Options{
		BatchSize:   cfg.Relay.BatchSize,
		Interval:    cfg.Relay.Interval(),
		MaxAttempts: cfg.Relay.MaxAttempts,
	})
	relay.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	relay.Stop()
}
