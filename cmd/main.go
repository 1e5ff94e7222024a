package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/MindBridge/config"
	"github.com/Gopher0727/MindBridge/internal/api"
	"github.com/Gopher0727/MindBridge/internal/consumer"
	"github.com/Gopher0727/MindBridge/internal/handler"
	grpcserver "github.com/Gopher0727/MindBridge/internal/pkg/grpc"
	"github.com/Gopher0727/MindBridge/internal/pkg/kafka"
	"github.com/Gopher0727/MindBridge/internal/pkg/redis"
	"github.com/Gopher0727/MindBridge/internal/service"
	"github.com/Gopher0727/MindBridge/internal/ws"
	"github.com/Gopher0727/MindBridge/middleware/jwt"
	logger "github.com/Gopher0727/MindBridge/middleware/log"
	"github.com/Gopher0727/MindBridge/utils/consistenthash"
	"github.com/Gopher0727/MindBridge/utils/ratelimit"
	"github.com/Gopher0727/MindBridge/utils/snowflake"
	"github.com/Gopher0727/MindBridge/utils/workerpool"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置初始化失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化存储
	st, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	defer st.close()

	// 初始化 Redis（可选：单节点部署可以关闭）
	var redisClient *redis.Client
	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		limiter = ratelimit.NewWindowLimiter(redisClient.GetClient(), log, true)
	} else {
		log.Warn("redis disabled: rate limiting off, notifications reach local connections only")
	}

	// 一致性哈希环决定用户的归属节点
	ring := consistenthash.New(cfg.Gateway.Replicas, nil)
	ring.Add(cfg.Gateway.Nodes...)
	ring.Add(cfg.Gateway.NodeID)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := ws.NewHub(redisClient, ring, cfg.Gateway.NodeID, log)
	go hub.Run(hubCtx)

	// 事件发布：启用 Kafka 时经由事件流，否则直接推送给在线用户
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = kafka.NewEventPublisher(producer, cfg.Kafka.Topics.Events, cfg.Kafka.Producer.MaxRetries)

		relay := consumer.NewEventRelay(hub, log)
		eventConsumer, err := kafka.NewConsumer(&cfg.Kafka, []string{cfg.Kafka.Topics.Events}, relay.Handle, log)
		if err != nil {
			return err
		}
		defer eventConsumer.Stop()
		go func() {
			if err := eventConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event consumer failed to start", zap.Error(err))
			}
		}()
	} else {
		publisher = service.NewDirectPublisher(hub)
	}

	// 事件在后台协程池中投递，避免拖慢请求
	pool := workerpool.New(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, log)
	pool.Start()
	defer pool.Stop()
	publisher = service.NewAsyncPublisher(publisher, pool, 5*time.Second, log)

	ids, err := snowflake.NewGenerator(workerID(cfg.Gateway))
	if err != nil {
		return err
	}
	retry := service.NewRetryPolicy(&cfg.Ledger)
	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)

	// 初始化服务层
	authService := service.NewAuthService(st.users, tokens)
	circleService := service.NewCircleService(st.circles, st.memberships, publisher, retry, log)
	contentService := service.NewContentService(st.circles, st.memberships, st.posts, ids, publisher, retry, log)
	friendService := service.NewFriendService(st.friendships, st.users, publisher, retry, log)
	messageService := service.NewMessageService(st.messages, friendService, ids, publisher, retry, log)
	moodService := service.NewMoodService(st.moods, retry)
	journalService := service.NewJournalService(st.journals, st.memberships, retry)

	// gRPC 授权查询
	var rpc *grpcserver.Server
	if cfg.GRPC.Enabled {
		rpc, err = grpcserver.NewServer(cfg.GRPC.Address, log)
		if err != nil {
			return err
		}
		grpcserver.NewAuthzServer(circleService).Register(rpc)
		go func() {
			if err := rpc.Start(); err != nil {
				log.Error("gRPC server stopped", zap.Error(err))
			}
		}()
	}

	middleware := api.NewMiddlewareManager(tokens, limiter, log, &cfg.RateLimit)
	router := api.NewRouter(cfg.Server.Mode, middleware, &api.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Circle:  handler.NewCircleHandler(circleService),
		Content: handler.NewContentHandler(contentService),
		Friend:  handler.NewFriendHandler(friendService),
		Message: handler.NewMessageHandler(messageService),
		Mood:    handler.NewMoodHandler(moodService),
		Journal: handler.NewJournalHandler(journalService),
		WS:      handler.NewWSHandler(authService, hub, log),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("正在启动服务器", zap.String("addr", srv.Addr), zap.String("node", cfg.Gateway.NodeID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	if rpc != nil {
		rpc.Stop()
	}
	stopHub()
	return nil
}

// workerID derives the snowflake worker from the node's position in the
// gateway list, so nodes sharing a config never collide. Validate guarantees
// a non-empty list contains the node; an empty list means a lone node.
func workerID(gw config.GatewayConfig) int64 {
	nodes := slices.Clone(gw.Nodes)
	slices.Sort(nodes)
	if i := slices.Index(nodes, gw.NodeID); i >= 0 {
		return int64(i) % (snowflake.MaxWorker + 1)
	}
	return 0
}
