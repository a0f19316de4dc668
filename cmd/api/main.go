package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/config"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/handler"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/provider"
	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/turn"
	memorystore "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/storage/memory"
	redisstore "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store := newStore(cfg.Redis)

	chatSvc := chatservice.NewService(store)
	if err := chatSvc.Restore(ctx); err != nil {
		log.Fatalf("failed to restore sessions: %v", err)
	}

	var runner *turn.Runner
	if cfg.AI.Enabled() {
		adapter, err := provider.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI provider: %v", err)
			log.Println("continuing without message processing - check ARK_* environment variables")
		} else {
			runner = turn.NewRunner(adapter, chatSvc, turn.WithRevealDelay(cfg.Chat.RevealDelay))
			log.Println("AI provider initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, message submission disabled")
	}

	router := handler.NewRouter(chatSvc, runner)

	startServer(ctx, cfg.Server, router)

	if runner != nil {
		// Let in-flight turns settle and commit before exiting.
		runner.Wait()
	}
}

func newStore(cfg config.RedisConfig) chatservice.Store {
	if cfg.Addr == "" {
		log.Println("REDIS_ADDR not set, using in-memory session store")
		return memorystore.NewStore()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log.Printf("using redis session store at %s", cfg.Addr)
	return redisstore.NewStore(rdb)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Knowledge Explorer backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
