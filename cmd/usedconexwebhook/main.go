package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/MaryAsgari/usedconexwebhook/internal/agent"
	"github.com/MaryAsgari/usedconexwebhook/internal/config"
	"github.com/MaryAsgari/usedconexwebhook/internal/messenger"
	"github.com/MaryAsgari/usedconexwebhook/internal/quote"
	"github.com/MaryAsgari/usedconexwebhook/internal/vertex"
	"github.com/MaryAsgari/usedconexwebhook/internal/webhook"
)

func main() {
	// .env is optional; real deployments set secrets in the environment.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Refusing to start")
	}
	log.Info().Str("model", cfg.Model).Str("location", cfg.Location).Msg("Configuration loaded")

	ctx := context.Background()

	model, err := vertex.NewClient(ctx, vertex.Options{
		ProjectID:       cfg.ProjectID,
		Location:        cfg.Location,
		Model:           cfg.Model,
		Endpoint:        cfg.VertexEndpoint,
		CredentialsJSON: cfg.ServiceAccountJSON,
		Timeout:         cfg.VertexTimeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Vertex AI client")
	}

	quotes := quote.NewClient(cfg.UsedConexAPI, cfg.LoginTimeout, cfg.QuoteTimeout, log)
	sender := messenger.NewSender(cfg.GraphAPIURL, cfg.PageAccessToken, cfg.SendTimeout, log)
	orchestrator := agent.NewOrchestrator(model, quotes, sender, log)
	handlers := webhook.NewHandlers(orchestrator, cfg.VerifyToken, cfg.AppSecret, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/health", handlers.GetHealth)
	router.GET("/webhook", handlers.GetVerify)
	router.POST("/webhook", handlers.PostReceive)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server shutdown complete")
}
