package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/careforall/settlement/internal/bus"
	"github.com/careforall/settlement/internal/config"
	"github.com/careforall/settlement/internal/logger"
	"github.com/careforall/settlement/internal/model"
	"github.com/careforall/settlement/internal/repo"
	"github.com/careforall/settlement/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger("campaign")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.Campaign{}); err != nil {
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
	svc := service.NewCampaignService(repository, log)

	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.NewSubscriber(cfg.Kafka.Brokers, service.TopicPledgeUpdated,
		cfg.Kafka.GroupPrefix+"-campaign", log)
	defer sub.Close()
	go func() {
		if err := sub.Run(ctx, svc.HandlePledgeUpdated); err != nil && ctx.Err() == nil {
			log.Errorf("pledge.updated consumer stopped: %v", err)
		}
	}()

	log.Info("campaign consumer started")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()
}
