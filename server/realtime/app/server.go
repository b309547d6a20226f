package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leandro-lugaresi/hub"
	amqp "github.com/rabbitmq/amqp091-go"

	commonauth "editmarket/server/common/auth"
	"editmarket/server/common/infra/cache"
	"editmarket/server/common/infra/db"
	"editmarket/server/common/infra/mq"
	"editmarket/server/common/infra/object"
	commonlog "editmarket/server/common/log"
	realtimeapi "editmarket/server/realtime/api"
	"editmarket/server/realtime/repository"
	realtimeservice "editmarket/server/realtime/service"
)

type Server struct {
	HTTPServer *http.Server

	svc      *realtimeservice.Service
	bridge   *realtimeservice.RedisBridge
	mqConn   *amqp.Connection
	mqCancel context.CancelFunc
}

func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	bus := hub.New()
	deps := realtimeservice.Deps{TypingTTL: cfg.TypingTTL}

	h := realtimeapi.HandlerDeps{}

	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	orders := repository.NewOrderRepository(pool)
	messages := repository.NewMessageRepository(pool)
	notifications := repository.NewNotificationRepository(pool)
	deps.Orders = orders
	deps.OrderStore = orders
	deps.Messages = messages
	deps.Notifications = notifications
	h.Messages = messages
	h.Notifications = notifications

	var bridge *realtimeservice.RedisBridge
	if cfg.UseRedis {
		redisClient := cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, redisClient); err != nil {
			commonlog.Warnf("event=realtime_app action=redis_ping status=failed addr=%s error=%v", cfg.RedisAddr, err)
		} else {
			bridge = realtimeservice.NewRedisBridge(redisClient)
			deps.Bridge = bridge
		}
	}

	if cfg.UseObjectStore {
		objectClient, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			commonlog.Warnf("event=realtime_app action=object_store status=disabled error=%v", err)
		} else {
			if err := object.EnsureBucket(ctx, objectClient, cfg.MinioBucket); err != nil {
				commonlog.Warnf("event=realtime_app action=ensure_bucket status=failed bucket=%s error=%v", cfg.MinioBucket, err)
			}
			h.Attachments = realtimeservice.NewAttachmentService(objectClient, cfg.MinioBucket)
		}
	}

	svc := realtimeservice.NewService(bus, deps)
	if bridge != nil {
		if err := bridge.Start(ctx); err != nil {
			commonlog.Warnf("event=realtime_app action=fanout_subscribe status=failed error=%v", err)
		}
	}

	srv := &Server{svc: svc, bridge: bridge}

	if cfg.UseMQ {
		mqConn, err := mq.NewConnection(cfg.RabbitURL)
		if err != nil {
			commonlog.Warnf("event=realtime_app action=mq_connect status=failed error=%v", err)
		} else {
			ch, err := mq.DeclareTopicExchange(mqConn, cfg.PaymentsExchange)
			if err != nil {
				commonlog.Warnf("event=realtime_app action=mq_declare status=failed error=%v", err)
				_ = mqConn.Close()
			} else {
				consumeCtx, cancel := context.WithCancel(context.Background())
				if err := svc.Notifier().ConsumePayments(consumeCtx, ch, cfg.PaymentsExchange, cfg.PaymentsQueue); err != nil {
					commonlog.Warnf("event=realtime_app action=mq_consume status=failed error=%v", err)
					cancel()
					_ = mqConn.Close()
				} else {
					srv.mqConn = mqConn
					srv.mqCancel = cancel
				}
			}
		}
	}

	auth := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	handler := realtimeapi.NewHandler(svc, auth, h)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	handler.RegisterRoutes(r)

	srv.HTTPServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.mqCancel != nil {
		s.mqCancel()
	}
	if s.mqConn != nil {
		_ = s.mqConn.Close()
	}
	if s.bridge != nil {
		s.bridge.Stop()
	}
	s.svc.Close()
	return s.HTTPServer.Shutdown(ctx)
}
