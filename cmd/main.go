package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/integrations/inference"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/logging"
	"chat-relay/internal/telemetry"
	"chat-relay/internal/usecase"
)

const serviceName = "chat-relay"

func main() {
	ctx := context.Background()

	// Local runs only; the Lambda environment has no .env file.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		slog.Error("failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if cfg.TracingEnabled {
		// Spans are exported synchronously and nothing is left to flush at
		// shutdown, so the shutdown func is not kept.
		if _, err := telemetry.InitTracer(serviceName, logger, os.Stdout); err != nil {
			logger.Error("failed to initialize tracing", "err", err)
			os.Exit(1)
		}
	}

	// ---- Endpoint URL, optionally from SSM ----
	endpoint := cfg.InferenceAPIURL
	if cfg.InferenceAPIURLParam != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			logger.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		endpoint, err = ssmClient.Resolve(ctx, cfg.InferenceAPIURLParam, cfg.InferenceAPIURL)
		if err != nil {
			logger.Error("failed to resolve inference endpoint", "param", cfg.InferenceAPIURLParam, "err", err)
			os.Exit(1)
		}
		if err := config.ValidateURL(endpoint); err != nil {
			logger.Error("invalid inference endpoint from SSM", "param", cfg.InferenceAPIURLParam, "err", err)
			os.Exit(1)
		}
	}

	// ---- Clients ----
	inferenceClient, err := inference.NewClient(endpoint,
		inference.WithHTTPClient(telemetry.HTTPClient(&http.Client{})),
	)
	if err != nil {
		logger.Error("failed to create inference client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	relayService, err := usecase.NewRelayService(inferenceClient, cfg.ModelID, cfg.InferenceTimeout)
	if err != nil {
		logger.Error("failed to create relay service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(relayService, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	logger.Info("starting",
		slog.String("model_id", cfg.ModelID),
		slog.String("inference_api_url", endpoint),
		slog.Duration("inference_timeout", cfg.InferenceTimeout),
	)
	lambda.Start(h.Handle)
}
