package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/careforall/settlement/internal/config"
	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/repo"
	"github.com/careforall/settlement/internal/service"
	httptransport "github.com/careforall/settlement/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("bank")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Account{}, &model.Hold{}, &model.Transaction{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	repository := repo.NewRepository(gdb, rdb, log)
	svc := service.NewLedgerService(repository, log)

	// Stale-hold sweeper. Capture expires lazily as well; this just
	// frees available balance on holds nothing ever captured.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := svc.ExpireStaleHolds(context.Background()); err != nil {
				log.Errorf("expire stale holds: %v", err)
			}
		}
	}()

	router := httptransport.NewBankRouter(svc, cfg.RateLimit, log)

	addr := fmt.Sprintf(":%d", cfg.Bank.Port)
	log.Infof("bank service listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
