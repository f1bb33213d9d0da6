package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/client"
	"github.com/sisu-network/txconfirm/config"
	"github.com/sisu-network/txconfirm/core"
	"github.com/sisu-network/txconfirm/database"
	"github.com/sisu-network/txconfirm/server"
)

func initialize() (config.Config, database.Database) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Cannot load .env file, err = %v", err)
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "./txconfirm.toml"
	}

	cfg, err := config.ReadConfig(configFile)
	if err != nil {
		panic(err)
	}

	// Connect DB and run the migrations.
	db := database.NewDb(&cfg)
	err = db.Init()
	if err != nil {
		panic(err)
	}

	return cfg, db
}

func main() {
	cfg, db := initialize()

	notifierClient := client.NewClient(cfg.NotifierUrl)
	go notifierClient.TryDial()

	processor := core.NewProcessor(&cfg, db, notifierClient)
	if err := processor.Start(); err != nil {
		panic(err)
	}

	handler := rpc.NewServer()
	if err := handler.RegisterName("confirmer", server.NewApi(processor)); err != nil {
		panic(err)
	}

	s := server.NewServer(handler, cfg.ServerPort)
	go s.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Received signal ", sig, ", shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Error("Failed to shut down the server, err = ", err)
	}
	processor.Stop()
	db.Close()
}
