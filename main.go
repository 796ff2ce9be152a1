package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/djsadd/AcademicQuestionBot/internal/api"
	"github.com/djsadd/AcademicQuestionBot/internal/auth"
	"github.com/djsadd/AcademicQuestionBot/internal/chatstore"
	"github.com/djsadd/AcademicQuestionBot/internal/config"
	"github.com/djsadd/AcademicQuestionBot/internal/platform"
	"github.com/djsadd/AcademicQuestionBot/internal/redis"
	"github.com/djsadd/AcademicQuestionBot/internal/storage"
	"github.com/djsadd/AcademicQuestionBot/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("AQB_CONFIG"))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	kv, closeKV, err := openKV(cfg)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}
	defer closeKV()

	client := platform.NewClient(
		cfg.Platform.BaseURL,
		cfg.Platform.Timeout,
		platform.WithProfile(cfg.Platform.Language, cfg.Platform.Channel),
	)
	authService := auth.NewService(client, cfg.Chat.IdentityCacheTTL)
	chats := chatstore.NewManager(kv, client, chatstore.Config{
		IntroMessage:   cfg.Chat.IntroMessage,
		PendingMessage: cfg.Chat.PendingMessage,
		DefaultTitle:   cfg.Chat.DefaultTitle,
		TitleLimit:     cfg.Chat.TitleLimit,
		HighlightTTL:   cfg.Chat.HighlightTTL,
	})
	defer chats.Close()

	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.CORS)))
	api.NewHandler(chats, client, authService).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infof("listening on %s (platform %s, storage %s)",
		cfg.Server.Address, cfg.Platform.BaseURL, cfg.Storage.Driver)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server stopped: %v", err)
	}
}

// openKV picks the persisted storage backend for chat history.
func openKV(cfg *config.Config) (storage.KV, func(), error) {
	switch cfg.Storage.Driver {
	case "", "memory":
		return storage.NewMemoryKV(), func() {}, nil
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisKV(client), func() { _ = client.Close() }, nil
	case "sqlite3", "mysql":
		db, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.Migrate(db, cfg.Storage.Driver); err != nil {
			db.Close()
			return nil, nil, err
		}
		return storage.NewSQLKV(db, cfg.Storage.Driver), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = cfg.AllowCredentials
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowHeaders("Authorization")
	return corsCfg
}
