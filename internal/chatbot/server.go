package chatbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ray729alp/mqa-chatbot/internal/chatbot/biz"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/handler"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/router"
	"github.com/ray729alp/mqa-chatbot/internal/chatbot/store"
	"github.com/ray729alp/mqa-chatbot/pkg/app"
	"github.com/ray729alp/mqa-chatbot/pkg/component/milvus"
	"github.com/ray729alp/mqa-chatbot/pkg/llm"

	// LLM providers register themselves at import time.
	_ "github.com/ray729alp/mqa-chatbot/pkg/llm/huggingface"
	_ "github.com/ray729alp/mqa-chatbot/pkg/llm/ollama"
	_ "github.com/ray729alp/mqa-chatbot/pkg/llm/openai"
	cacheopts "github.com/ray729alp/mqa-chatbot/pkg/options/cache"
	storeopts "github.com/ray729alp/mqa-chatbot/pkg/options/store"
	"github.com/ray729alp/mqa-chatbot/pkg/pool"
)

// Server is the assembled chatbot service and the resources it owns.
type Server struct {
	srv             *http.Server
	registry        *biz.Registry
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer initializes every component and returns a runnable server.
// Category stores that fail to open mark their category unavailable rather
// than failing startup; only infrastructure the whole service needs (logger,
// store backend, LLM providers) is fatal here.
func NewServer(opts *Options) (*Server, error) {
	// 1. Logger
	opts.Log.AddInitialField("service.name", Name)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting chatbot service...")

	var closers []func()

	// 2. Vector store opener
	opener, openerClose, err := newStoreOpener(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store backend: %w", opts.Store.Backend, err)
	}
	if openerClose != nil {
		closers = append(closers, openerClose)
	}
	logger.Infow("Vector store opener initialized", "backend", opts.Store.Backend)

	// 3. Redis client, shared by the answer and embedding caches
	redisClient, redisClose := newRedisClient(opts.Cache)
	if redisClose != nil {
		closers = append(closers, redisClose)
	}

	var queryCache *biz.QueryCache
	if redisClient != nil {
		queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
			Enabled:   true,
			TTL:       opts.Cache.TTL,
			KeyPrefix: opts.Cache.KeyPrefix,
		})
		logger.Infow("Answer cache initialized", "ttl", opts.Cache.TTL, "key_prefix", opts.Cache.KeyPrefix)
	}

	// 4. LLM providers
	embedder, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	if redisClient != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, redisClient, nil)
	}

	chatProvider, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", opts.Chat.Provider,
		"model", opts.Chat.Model,
	)

	// 5. Category registry, conversation memory, orchestrator
	var categories []biz.CategoryDescriptor
	if len(opts.Chatbot.Categories) > 0 {
		categories = biz.CategoriesFromNames(opts.Chatbot.Categories)
	}
	registry := biz.BuildRegistry(context.Background(), &biz.BuildConfig{
		Categories:   categories,
		Opener:       opener,
		Embedder:     embedder,
		ChatProvider: chatProvider,
		Pipeline: &biz.PipelineConfig{
			TopK:         opts.Chatbot.TopK,
			LLMTimeout:   opts.Chatbot.LLMTimeout,
			SystemPrompt: opts.Chatbot.SystemPrompt,
		},
	})
	for _, info := range registry.Infos() {
		logger.Infow("category initialized",
			"category", info.Name,
			"availability", info.Availability,
			"chunks", info.ChunkCount,
		)
	}

	memory := biz.NewConversationMemory(&biz.MemoryConfig{
		MaxTurns:   opts.Chatbot.MaxHistoryTurns,
		SessionTTL: opts.Chatbot.SessionTTL,
	})
	chatbot := biz.NewChatbot(registry, memory, queryCache)
	logger.Info("Chat orchestrator initialized")

	// 6. HTTP layer
	h := handler.NewChatHandler(chatbot, registry)
	engine := router.New(h, router.Config{CORSOrigins: opts.Chatbot.CORSOrigins})

	logger.Info("Chatbot service is ready")
	return &Server{
		srv: &http.Server{
			Addr:         opts.HTTP.Addr,
			Handler:      engine,
			ReadTimeout:  opts.HTTP.ReadTimeout,
			WriteTimeout: opts.HTTP.WriteTimeout,
			IdleTimeout:  opts.HTTP.IdleTimeout,
		},
		registry:        registry,
		shutdownTimeout: opts.ShutdownTimeout,
		closers:         closers,
	}, nil
}

// newStoreOpener selects the vector store backend. The second return value
// releases backend resources shared across categories, nil when there are
// none.
func newStoreOpener(opts *Options) (store.Opener, func(), error) {
	switch opts.Store.Backend {
	case storeopts.BackendMilvus:
		client, err := milvus.New(opts.Milvus)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMilvusOpener(client), func() { _ = client.Close(context.Background()) }, nil
	default:
		return store.NewSQLiteOpener(opts.Store.Dir), nil, nil
	}
}

// newRedisClient connects to Redis when the cache is enabled. A failed ping
// disables caching instead of failing startup.
func newRedisClient(opts *cacheopts.Options) (*goredis.Client, func()) {
	if !opts.Enabled {
		logger.Info("Cache is disabled")
		return nil, nil
	}

	redisOpts := opts.Redis
	client := goredis.NewClient(&goredis.Options{
		Addr:         redisOpts.Addr(),
		Password:     redisOpts.Password,
		DB:           redisOpts.Database,
		MaxRetries:   redisOpts.MaxRetries,
		PoolSize:     redisOpts.PoolSize,
		MinIdleConns: redisOpts.MinIdleConns,
		DialTimeout:  redisOpts.DialTimeout,
		ReadTimeout:  redisOpts.ReadTimeout,
		WriteTimeout: redisOpts.WriteTimeout,
		PoolTimeout:  redisOpts.PoolTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		_ = client.Close()
		return nil, nil
	}

	logger.Infow("Redis connected", "addr", redisOpts.Addr())
	return client, func() { _ = client.Close() }
}

// Run starts the HTTP server and blocks until a termination signal or a
// listener error. Owned resources are released on the way out.
func (s *Server) Run() error {
	defer s.close()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Infow("Server shutting down...", "signal", sig.String())
	}

	// A second signal skips the drain and exits immediately.
	go func() {
		<-quit
		logger.Warn("second signal received, forcing exit")
		os.Exit(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// close releases the registry's store handles, backend clients, and the
// shared background pool.
func (s *Server) close() {
	if err := s.registry.Close(); err != nil {
		logger.Warnw("failed to close category stores", "error", err.Error())
	}
	for _, closeFn := range s.closers {
		closeFn()
	}
	if err := pool.ReleaseBackground(5 * time.Second); err != nil {
		logger.Warnw("background pool release timed out", "error", err.Error())
	}
}
