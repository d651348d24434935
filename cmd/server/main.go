package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"taskchat/internal/api"
	"taskchat/internal/chat"
	"taskchat/internal/config"
	"taskchat/internal/database"
	"taskchat/internal/server"
	"taskchat/internal/stats"
	"taskchat/internal/token"
)

var (
	envFile     string
	skipMigrate bool
)

func main() {
	flag.StringVar(&envFile, "env-file", "", "optional .env file to load before reading the environment")
	flag.BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[taskchat] ", log.LstdFlags)

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Fatal("load env file:", err)
		}
	} else {
		// a missing default .env is fine; the environment may be set directly
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := database.NewPgRepository(cfg.DatabaseUrl)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if !skipMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	tokens, err := token.NewService(cfg.AccessKey, cfg.RefreshKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		logger.Fatal("token service:", err)
	}

	roomSvc := chat.NewRoomService(logger, db)
	msgSvc := chat.NewMessageService(logger, db)

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, roomSvc, msgSvc, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	app := api.NewApp(mux, logger, chatServer, db, tokens, roomSvc, msgSvc, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
