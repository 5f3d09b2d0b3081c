package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"policyrag/internal/config"
	"policyrag/internal/model"
	mysqlClient "policyrag/internal/platform/mysql"
	rabbitmqClient "policyrag/internal/platform/rabbitmq"
	redisClient "policyrag/internal/platform/redis"
	"policyrag/internal/repository"
	"policyrag/internal/worker"
)

// App holds the optional infrastructure the pipeline can run without:
// MySQL (audit log), Redis (document cache) and RabbitMQ (audit queue)
// are only connected when enabled in configuration.
type App struct {
	Config         *config.Config
	MySQL          *gorm.DB
	Redis          *redis.Client
	MQConn         *amqp.Connection
	AuditPublisher *rabbitmqClient.AuditPublisher
	AuditWorker    *worker.AuditWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	app := &App{
		Config:    cfg,
		StartedAt: time.Now(),
	}

	if cfg.MySQL.Enabled {
		mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		if err := mysqlDB.AutoMigrate(&model.QARecord{}); err != nil {
			return nil, fmt.Errorf("auto migrate tables failed: %w", err)
		}
		app.MySQL = mysqlDB
	}

	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		app.Redis = redisCli
	}

	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		app.MQConn = mqConn
		app.AuditPublisher = rabbitmqClient.NewAuditPublisher(mqConn, cfg.RabbitMQ.AuditQueue)
	}

	// The worker needs both the queue and the database behind it.
	if app.MQConn != nil && app.MySQL != nil {
		recordRepo := repository.NewQARecordRepository(app.MySQL)
		auditWorker := worker.NewAuditWorker(app.MQConn, recordRepo, cfg.RabbitMQ.AuditQueue)
		if err := auditWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start audit worker failed: %w", err)
		}
		app.AuditWorker = auditWorker
	}

	return app, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.AuditWorker != nil {
		a.AuditWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
