package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/careforall/settlement/internal/bus"
	"github.com/careforall/settlement/internal/config"
	"github.com/careforall/settlement/internal/idempotency"
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

	log, err := logger.NewLogger("pledge")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Pledge{}, &model.OutboxEvent{}); err != nil {
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
	svc := service.NewPledgeService(repository, log)
	store := idempotency.NewRedisStore(rdb)

	// Consume settlement outcomes fanned out by the payment service.
	sub := bus.NewSubscriber(cfg.Kafka.Brokers, service.TopicPaymentUpdate,
		cfg.Kafka.GroupPrefix+"-pledge", log)
	defer sub.Close()
	go func() {
		if err := sub.Run(context.Background(), svc.HandlePaymentUpdate); err != nil {
			log.Errorf("payment.update consumer stopped: %v", err)
		}
	}()

	router := httptransport.NewPledgeRouter(svc, store, cfg.RateLimit, log)

	addr := fmt.Sprintf(":%d", cfg.Pledge.Port)
	log.Infof("pledge service listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
