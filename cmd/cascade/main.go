// Command cascade is the Lambda entry point that expires relation rows when
// one of the aggregates they reference is soft deleted.
//
// It is subscribed to the DynamoDB streams of the aggregate tables and reads
// its settings from the environment:
//
//	TETHER_REGISTRY_FILE              relationship registry YAML (required)
//	TETHER_LOG_LEVEL                  debug, info, warn or error (default info)
//	TETHER_STORE_CONSISTENT_READ      strongly consistent table reads
//	TETHER_STORE_MAX_TRANSACTION_ITEMS
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"

	"github.com/jacentio/tether/store"
	"github.com/jacentio/tether/stream"
)

// Settings is the process configuration.
type Settings struct {
	RegistryFile string       `env:"REGISTRY_FILE,required"`
	LogLevel     slog.Level   `env:"LOG_LEVEL" envDefault:"info"`
	Store        store.Config `envPrefix:"STORE_"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("cascade failed to start", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	settings, err := env.ParseAsWithOptions[Settings](env.Options{Prefix: "TETHER_"})
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: settings.LogLevel}))
	slog.SetDefault(logger)

	registry, err := store.LoadRegistryFile(settings.RegistryFile)
	if err != nil {
		return err
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	s := store.NewWithRegistry(dynamodb.NewFromConfig(cfg), settings.Store, registry)
	handler := stream.NewHandler(s, logger)

	logger.Info("cascade handler ready",
		"relationships", len(registry.All()),
	)
	lambda.Start(handler.HandleCascadeDelete)
	return nil
}
