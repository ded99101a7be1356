package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/converse/adapters/events"
	"github.com/layer-3/converse/adapters/generator"
	"github.com/layer-3/converse/adapters/store"
	"github.com/layer-3/converse/adapters/tokenizer"
	"github.com/layer-3/converse/config"
	"github.com/layer-3/converse/ports"
	"github.com/layer-3/converse/service"
	transport "github.com/layer-3/converse/transport/http"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	nonces, publisher, err := buildInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	gemini, err := generator.NewGemini(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	defer gemini.Close()

	eventPub := events.NewWatermillPublisher(publisher)
	auth := service.NewAuthService(nonces, tokenizer.NewJWTTokenizer([]byte(cfg.JWTSecret), cfg.TokenTTL), eventPub, cfg.NonceTTL)
	registry := service.NewRegistry(db, gemini, eventPub)
	registry.StartReaper(ctx, cfg.ReaperInterval)

	router := transport.SetupRouter(auth, registry, transport.RouterConfig{
		CookieName:   transport.DefaultCookieName,
		CookieSecure: cfg.CookieSecure,
		CookieMaxAge: int(cfg.TokenTTL / time.Second),
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// buildInfra picks the nonce store and event transport. With Redis both are
// shared across replicas; without it everything stays in-process.
func buildInfra(ctx context.Context, cfg *config.Config) (ports.KVStore, message.Publisher, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if cfg.RedisURL == "" {
		log.Info().Msg("no REDIS_URL, using in-process nonce store and events")
		return store.NewMemoryStore(), gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, nil, err
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		return nil, nil, err
	}

	return store.NewRedisStore(client), publisher, nil
}
