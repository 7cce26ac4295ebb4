package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatrooms/internal/account"
	"chatrooms/internal/chat"
	"chatrooms/internal/config"
	"chatrooms/internal/db"
	"chatrooms/internal/flash"
	appmw "chatrooms/internal/middleware"
	"chatrooms/internal/web"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDevelopment() {
		logger = logger.Level(zerolog.DebugLevel)
	}

	// Platform layer
	database, err := db.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	logger.Info().Msg("connected to Postgres")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	logger.Info().Msg("connected to Redis")

	renderer := web.NewRenderer(logger)
	flashes := flash.NewRedisStore(redisClient)

	// Account feature
	accountRepo := account.NewRepository(database.Conn)
	accountSvc := account.NewService(accountRepo, cfg.JWTSecret)
	accountHandler := account.NewHandler(accountSvc, renderer, flashes, logger, !cfg.IsDevelopment())

	// Chat feature
	chatRepo := chat.NewRepository(database.Conn)
	chatSvc := chat.NewService(chatRepo, accountSvc, logger)
	chatHandler := chat.NewHandler(chatSvc, renderer, flashes, logger)

	authMiddleware := appmw.NewAuthMiddleware(accountSvc)
	// 30 messages a minute per account is plenty for a human.
	postLimiter := appmw.NewRateLimiter(redisClient, logger, 30, time.Minute)

	r := chi.NewRouter()
	r.Use(appmw.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.Logger(logger))
	r.Use(chimw.Recoverer)

	// Public routes
	r.Get("/login", accountHandler.LoginPage)
	r.Post("/login", accountHandler.Login)
	r.Get("/register", accountHandler.RegisterPage)
	r.Post("/register", accountHandler.Register)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/", chatHandler.Home)
		r.Post("/logout", accountHandler.Logout)

		r.Get("/users/search", accountHandler.Search)
		r.Get("/users/{username}", accountHandler.Profile)

		r.Get("/chat/start/{username}", chatHandler.StartChat)
		r.Get("/chat/new", chatHandler.NewGroupPage)
		r.Post("/chat/new", chatHandler.NewGroup)

		r.Get("/chat/room/{roomName}", chatHandler.Room)
		r.With(postLimiter.Middleware).Post("/chat/room/{roomName}", chatHandler.Room)

		r.Get("/chat/room/{roomName}/edit", chatHandler.EditPage)
		r.Post("/chat/room/{roomName}/edit", chatHandler.Edit)
		r.Get("/chat/room/{roomName}/delete", chatHandler.DeletePage)
		r.Post("/chat/room/{roomName}/delete", chatHandler.Delete)
		r.Get("/chat/room/{roomName}/leave", chatHandler.LeavePage)
		r.Post("/chat/room/{roomName}/leave", chatHandler.Leave)
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	_ = redisClient.Close()
	_ = database.Conn.Close()

	logger.Info().Msg("server stopped")
}
