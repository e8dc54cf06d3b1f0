package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/careforall/settlement/internal/bus"
	"github.com/careforall/settlement/internal/client"
	"github.com/careforall/settlement/internal/config"
	"github.com/careforall/settlement/internal/idempotency"
	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/service"
	httptransport "github.com/careforall/settlement/internal/transport/http"

	"github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("payment")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	kb := bus.NewKafkaBus(cfg.Kafka.Brokers, log)
	defer kb.Close()

	bank := client.NewBankClient(cfg.Payment.BankURL)
	webhook := client.NewWebhookClient(cfg.Payment.WebhookURL)
	svc := service.NewPaymentService(bank, webhook, kb, log)
	store := idempotency.NewRedisStore(rdb)

	router := httptransport.NewPaymentRouter(svc, store, cfg.RateLimit, log)

	addr := fmt.Sprintf(":%d", cfg.Payment.Port)
	log.Infof("payment service listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
