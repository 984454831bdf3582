package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnify-api/internal/repository"
	"github.com/noah-isme/learnify-api/internal/service"
	"github.com/noah-isme/learnify-api/pkg/config"
	"github.com/noah-isme/learnify-api/pkg/database"
	"github.com/noah-isme/learnify-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}

	auth := service.NewAuthService(repository.NewUserRepository(db), validator.New(), logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})

	cli := &commandLine{db: db.DB, admins: auth, out: os.Stdout}
	err = cli.run(ctx, os.Args)
	_ = db.Close()
	_ = logr.Sync()
	if err != nil {
		if err != errHelp {
			logr.Error("command failed", zap.Error(err))
		}
		os.Exit(1)
	}
}
