package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"ai-server/handler"
	"ai-server/internal/config"
	"ai-server/internal/integrations/llm"
	"ai-server/internal/integrations/paramstore"
	"ai-server/internal/repository"
	"ai-server/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- Credential sources ----
	openaiKeys, openrouterKeys, err := buildKeySources(ctx, cfg)
	if err != nil {
		slog.Error("failed to build credential sources", "err", err)
		os.Exit(1)
	}

	// ---- Provider clients ----
	openaiClient, err := llm.NewClient("openai", cfg.OpenAIBaseURL, openaiKeys, llm.WithTimeout(cfg.UpstreamTimeout))
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	openrouterClient, err := llm.NewClient("openrouter", cfg.OpenRouterBaseURL, openrouterKeys, llm.WithTimeout(cfg.UpstreamTimeout))
	if err != nil {
		slog.Error("failed to create OpenRouter client", "err", err)
		os.Exit(1)
	}
	router, err := llm.NewRouter(openaiClient, openrouterClient)
	if err != nil {
		slog.Error("failed to create provider router", "err", err)
		os.Exit(1)
	}

	// ---- Record store ----
	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create record store", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	completions, err := usecase.NewCompletionService(router)
	if err != nil {
		slog.Error("failed to create completion service", "err", err)
		os.Exit(1)
	}
	prefill, err := usecase.NewPrefillService(router, store, cfg.PrefillModel)
	if err != nil {
		slog.Error("failed to create prefill service", "err", err)
		os.Exit(1)
	}

	srv, err := handler.New(completions, prefill)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Upstream completion calls can legitimately take close to the
		// configured timeout; leave headroom for response writing.
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
	}

	go func() {
		slog.Info("listening", "addr", httpServer.Addr, "store", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// buildKeySources picks the provider API key sources. With CREDENTIAL_SOURCE=ssm
// the keys are fetched lazily from Parameter Store; otherwise they come from
// the environment and a missing key surfaces on the first upstream call.
func buildKeySources(ctx context.Context, cfg config.Config) (llm.KeySource, llm.KeySource, error) {
	if cfg.CredentialSource != config.CredentialsSSM {
		return llm.StaticKey(cfg.OpenAIKey), llm.StaticKey(cfg.OpenRouterKey), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, nil, err
	}
	openaiKeys, err := paramstore.NewKeySource(ps, cfg.ParamPrefix+"/openai_api_key")
	if err != nil {
		return nil, nil, err
	}
	openrouterKeys, err := paramstore.NewKeySource(ps, cfg.ParamPrefix+"/openrouter_api_key")
	if err != nil {
		return nil, nil, err
	}
	return openaiKeys, openrouterKeys, nil
}

func buildStore(ctx context.Context, cfg config.Config) (usecase.RecordStore, error) {
	if cfg.StoreBackend != config.StoreDynamoDB {
		return repository.NewCSVStore(cfg.CSVPath)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewInvoiceTable(awsdynamodb.NewFromConfig(awsCfg), cfg.InvoiceTable)
}
