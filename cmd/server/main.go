// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"lawchat-go/internal/config"
	"lawchat-go/internal/handler"
	"lawchat-go/internal/middleware"
	"lawchat-go/internal/repository"
	"lawchat-go/internal/service"
	"lawchat-go/pkg/cache"
	"lawchat-go/pkg/database"
	"lawchat-go/pkg/es"
	"lawchat-go/pkg/events"
	"lawchat-go/pkg/kafka"
	"lawchat-go/pkg/llm"
	"lawchat-go/pkg/log"
	"lawchat-go/pkg/storage"
	"lawchat-go/pkg/token"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	// 1. 初始化配置
	configPath := "./configs/config.yaml"
	if p := os.Getenv("LAWCHAT_CONFIG"); p != "" {
		configPath = p
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()

	// 3. 初始化 Redis（缓存或对话存储需要时）
	var rdb *redis.Client
	if cfg.Cache.Backend == "redis" || cfg.Conversation.Store == "redis" {
		client, err := database.InitRedis(initCtx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			log.Fatal("Redis 初始化失败", err)
		}
		rdb = client
		defer rdb.Close()
	}

	// 4. 初始化对话存储
	var conversationRepo repository.ConversationRepository
	switch cfg.Conversation.Store {
	case "redis":
		conversationRepo = repository.NewRedisConversationRepository(rdb, cfg.Conversation.RedisMaxHistory, cfg.Conversation.RedisTTL)
	default:
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			log.Fatal("MySQL 初始化失败", err)
		}
		conversationRepo = repository.NewMessageRepository(db)
	}

	// 5. 初始化缓存
	var responseCache cache.Cache
	if cfg.Cache.Backend == "redis" {
		responseCache = cache.NewRedisCache(rdb)
	} else {
		responseCache = cache.NewMemoryCache()
	}

	// 6. 初始化外部生成服务客户端：超时、重试、限流与熔断
	var limiter *rate.Limiter
	if cfg.Provider.RequestsPerSecond > 0 {
		burst := cfg.Provider.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Provider.RequestsPerSecond), burst)
	}
	breaker := llm.NewBreaker(llm.BreakerConfig{
		FailureThreshold:   cfg.Breaker.FailureThreshold,
		ErrorRateThreshold: cfg.Breaker.ErrorRateThreshold,
		MinRequests:        cfg.Breaker.MinRequests,
		Window:             cfg.Breaker.Window,
		Cooldown:           cfg.Breaker.Cooldown,
	})
	providerClient := llm.NewResilientClient(llm.NewProvider(cfg.LLM), breaker, llm.RetryConfig{
		Timeout:     cfg.Provider.Timeout,
		MaxRetries:  cfg.Provider.MaxRetries,
		BackoffBase: cfg.Provider.BackoffBase,
		BackoffMax:  cfg.Provider.BackoffMax,
	}, limiter)

	// 7. 可选组件：参考资料检索、草稿归档、聊天事件
	var references service.ReferenceSearcher
	if cfg.Elasticsearch.Addresses != "" {
		searcher, err := es.NewSearcher(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		if err := searcher.EnsureIndex(initCtx); err != nil {
			log.Warnf("创建参考资料索引失败，咨询将不附带参考资料: %v", err)
		} else {
			references = searcher
		}
	}

	var archive service.DraftArchiver
	if cfg.MinIO.Endpoint != "" {
		draftArchive, err := storage.NewDraftArchive(initCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		archive = draftArchive
	}

	var publisher events.Publisher = events.NopPublisher{}
	var producer *kafka.Producer
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
	}

	// 8. 初始化 Service (依赖注入)
	classifier := service.NewIntentClassifier(providerClient, responseCache, service.ClassifierConfig{
		ModelID:         cfg.LLM.Model,
		PromptVersion:   cfg.Classifier.PromptVersion,
		ConfidenceFloor: cfg.Classifier.ConfidenceFloor,
		CacheTTL:        cfg.Cache.ClassifyTTL,
	})
	router := service.NewResponseRouter(providerClient, responseCache, service.HeuristicExtractor{}, references, archive, service.RouterConfig{
		ModelID:          cfg.LLM.Model,
		ConsultTTL:       cfg.Cache.ConsultTTL,
		DraftTTL:         cfg.Cache.DraftTTL,
		GenerationWindow: cfg.Conversation.GenerationWindow,
		ReferenceTopK:    cfg.Elasticsearch.TopK,
		Temperature:      cfg.LLM.Generation.Temperature,
		MaxOutputTokens:  cfg.LLM.Generation.MaxTokens,
		Prompt: service.PromptConfig{
			Rules:        cfg.LLM.Prompt.Rules,
			RefStart:     cfg.LLM.Prompt.RefStart,
			RefEnd:       cfg.LLM.Prompt.RefEnd,
			NoResultText: cfg.LLM.Prompt.NoResultText,
		},
	})
	chatService := service.NewChatService(conversationRepo, classifier, router, publisher, service.ChatConfig{
		ClassifierWindow: cfg.Conversation.ClassifierWindow,
		GenerationWindow: cfg.Conversation.GenerationWindow,
	})
	conversationService := service.NewConversationService(conversationRepo)

	var jwtManager *token.JWTManager
	if cfg.JWT.Secret != "" {
		jwtManager = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.OptionalAuth(jwtManager))

	chatHandler := handler.NewChatHandler(chatService)
	conversationHandler := handler.NewConversationHandler(conversationService)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.POST("/messages", chatHandler.SendMessage)
			chatGroup.GET("/history", conversationHandler.GetConversations)
		}
	}
	r.GET("/chat/ws", chatHandler.Handle)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": gin.H{"breaker": breaker.State().String()}})
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 刷新尚未发送的聊天事件
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("关闭 Kafka producer 失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
