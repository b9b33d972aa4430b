// Command server runs the chatbot core's connection dispatcher: it
// wires the session, routing, pipeline, conversation/analytics, and
// workflow subsystems to a websocket listener plus liveness/readiness
// probes, and sweeps idle sessions on a timer.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kaisan-axrail/mbppchatbot-sub000/auth"
	"github.com/kaisan-axrail/mbppchatbot-sub000/cache"
	"github.com/kaisan-axrail/mbppchatbot-sub000/health"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/analytics"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/config"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/conversation"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/dispatcher"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/modelclient"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/pipeline"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/retrieval"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/router"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/session"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/store"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/toolregistry"
	"github.com/kaisan-axrail/mbppchatbot-sub000/internal/workflow"
	"github.com/kaisan-axrail/mbppchatbot-sub000/observe"
	"github.com/kaisan-axrail/mbppchatbot-sub000/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "mbpp-chatbot-core",
		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
	})
	if err != nil {
		log.Fatalf("observe: %v", err)
	}
	defer obs.Shutdown(context.Background())
	logger := obs.Logger()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)
	bedrockAgentClient := bedrockagentruntime.NewFromConfig(awsCfg)

	kv := store.NewDynamoKV(dynamoClient, map[string]store.KeySchema{
		cfg.Store.SessionsTable:      {PartitionKey: "session_id"},
		cfg.Store.ConversationsTable: {PartitionKey: "session_id", SortKey: "message_id"},
		cfg.Store.AnalyticsTable:     {PartitionKey: "date", SortKey: "event_id"},
		cfg.Store.TicketsTable:       {PartitionKey: "ticket_number"},
		cfg.Store.EventsTable:        {PartitionKey: "event_id"},
	})
	blob := store.NewS3Blob(s3Client, cfg.Store.AttachmentsBucket)

	generator := modelclient.New(cfg.Model, bedrockClient, logger, nil)
	embedder := modelclient.NewBedrockEmbedder(bedrockClient, cfg.Model.EmbeddingModelID)
	retrievalClient := retrieval.New(cfg.Retrieval, bedrockAgentClient, embedder, blob, logger)

	toolDefs, err := toolregistry.LoadDefinitions(cfg.Tools.SchemaPath)
	if err != nil {
		logger.Warn(ctx, "tool registry: no schema loaded, tool pipeline will have nothing to invoke", observe.Field{Key: "error", Value: err.Error()})
	}
	rpcClient := toolregistry.NewHTTPRPCClient(cfg.Tools.RequestTimeout)
	toolCache := cache.NewMemoryCache(cache.DefaultPolicy())
	registry := toolregistry.New(toolDefs, rpcClient, toolCache, generator, logger, nil)

	rtr := router.New(generator, logger)
	general := pipeline.NewGeneral(generator, logger)
	rag := pipeline.NewRAG(retrievalClient, generator, general, pipeline.RAGConfig{
		Limit:          cfg.Retrieval.DefaultLimit,
		Threshold:      cfg.Retrieval.MinRelevanceScore,
		ContextCharCap: cfg.Retrieval.ContextCharCap,
	}, logger)
	tool := pipeline.NewTool(registry, generator, general, logger)
	pipelines := map[router.Intent]pipeline.Executor{
		router.IntentGeneral: general,
		router.IntentRAG:     rag,
		router.IntentTool:    tool,
	}

	convResilience := resilience.NewExecutor(
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceKV, nil))),
		resilience.WithRetry(resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceKV, nil))),
	)
	convWriter := conversation.New(kv, cfg.Store.ConversationsTable, convResilience)
	analyticsResilience := resilience.NewExecutor(
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceAnalytics, nil))),
		resilience.WithRetry(resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceAnalytics, nil))),
	)
	analyticsWriter := analytics.New(kv, cfg.Store.AnalyticsTable, analyticsResilience, logger)

	classifier := workflow.NewClassifier(generator, cfg.Model.VisionMaxImageBytes, logger)
	workflowEngine := workflow.New(classifier, kv, blob, cfg.Store.TicketsTable, cfg.Store.EventsTable, logger)

	sessionResilience := resilience.NewExecutor(
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.NamedBreakerConfig(resilience.ServiceKV, nil))),
		resilience.WithRetry(resilience.NewRetry(resilience.NamedRetryConfig(resilience.ServiceKV, nil))),
	)
	sessionManager := session.New(kv, session.Config{
		Table:           cfg.Store.SessionsTable,
		Timeout:         cfg.SessionTimeout,
		TTLSafetyFactor: cfg.SessionTTLSafetyFactor,
	}, sessionResilience, logger, nil, nil)

	aggregator := health.NewAggregator()
	aggregator.Register("model", health.NewCheckerFunc("model", func(ctx context.Context) health.Result {
		return health.Healthy("model client configured")
	}))
	aggregator.Register("store", health.NewCheckerFunc("store", func(ctx context.Context) health.Result {
		return health.Healthy("store client configured")
	}))
	statusFn := dispatcher.NewHealthStatusFn(aggregator)

	apiKeyStore := auth.NewMemoryAPIKeyStore()
	authenticator := auth.NewAPIKeyAuthenticator(auth.APIKeyConfig{HeaderName: "X-API-Key"}, apiKeyStore)

	d := dispatcher.New(sessionManager, rtr, pipelines, convWriter, analyticsWriter, workflowEngine, statusFn, logger, dispatcher.Config{
		DefaultTenantID:  "default",
		PipelineDeadline: cfg.PipelineDeadline,
	}).WithAuthenticator(authenticator)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.HandleConnection)
	mux.Handle("/healthz", health.LivenessHandler())
	mux.Handle("/readyz", health.ReadinessHandler(aggregator))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go runSweeper(ctx, sessionManager, cfg.SweepInterval, cfg.SweepDeadline, logger)

	go func() {
		logger.Info(ctx, "server listening", observe.Field{Key: "addr", Value: cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "server failed", observe.Field{Key: "error", Value: err.Error()})
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// runSweeper periodically reaps idle/closed sessions (spec.md §4.5,
// §5's independent sweeper deadline).
func runSweeper(ctx context.Context, manager *session.Manager, interval, deadline time.Duration, logger observe.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, deadline)
			if removed, err := manager.Sweep(sweepCtx); err != nil {
				logger.Warn(sweepCtx, "sweep failed", observe.Field{Key: "error", Value: err.Error()})
			} else {
				logger.Info(sweepCtx, "sweep complete", observe.Field{Key: "removed", Value: removed})
			}
			cancel()
		}
	}
}
