// Command flow-demo runs a small workflow against a configurable session
// store. It demonstrates both run modes: a streaming run whose fragments are
// aggregated into the session history and a single-shot run that resumes the
// same session.
package main

import (
	"context"
	"flag"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"goa.design/clue/log"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	mongostore "goa.design/flow/features/session/mongo"
	clientsmongo "goa.design/flow/features/session/mongo/clients/mongo"
	redisstore "goa.design/flow/features/session/redis"
	pulsestream "goa.design/flow/features/stream/pulse"
	clientspulse "goa.design/flow/features/stream/pulse/clients/pulse"
	"goa.design/flow/runtime/telemetry"
	"goa.design/flow/runtime/workflow"
	"goa.design/flow/runtime/workflow/inmem"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration (optional)")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := LoadConfig(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}
	log.Print(ctx, log.KV{K: "store-backend", V: cfg.Store.Backend})

	store, cleanup, err := buildStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build session store")
	}
	defer cleanup()

	var sink workflow.Sink
	if cfg.Stream.Enabled {
		sink, err = buildSink(cfg)
		if err != nil {
			log.Fatalf(ctx, err, "failed to build stream sink")
		}
	}

	// Streaming run: the handler yields one fragment per word.
	streamer, err := workflow.New(workflow.Options{
		Name:      cfg.Workflow.Name,
		SessionID: cfg.Workflow.SessionID,
		UserID:    cfg.Workflow.UserID,
		Store:     store,
		Sink:      sink,
		Handler: func(ctx context.Context, input map[string]any) workflow.Outcome {
			words := []string{"Once", " upon", " a", " time"}
			return workflow.Streaming(func(yield func(any) bool) {
				for _, word := range words {
					if !yield(workflow.NewRunResponse(word)) {
						return
					}
				}
			})
		},
		Descriptor: workflow.HandlerDescriptor{HasCustomLogic: true},
		Logger:     telemetry.NewClueLogger(),
		Metrics:    telemetry.NewClueMetrics(),
		Tracer:     telemetry.NewClueTracer(),
	})
	if err != nil {
		log.Fatalf(ctx, err, "failed to build workflow")
	}

	outcome, err := streamer.Execute(ctx, map[string]any{"topic": "beginnings"})
	if err != nil {
		log.Fatalf(ctx, err, "streaming run failed")
	}
	var parts []string
	for fragment := range outcome.Stream {
		if response, ok := fragment.(*workflow.RunResponse); ok {
			parts = append(parts, response.Content)
		}
	}
	log.Print(ctx, log.KV{K: "streamed", V: strings.Join(parts, "")})

	// Single-shot run resuming the same session.
	single, err := workflow.New(workflow.Options{
		Name:      cfg.Workflow.Name,
		SessionID: streamer.SessionID,
		UserID:    cfg.Workflow.UserID,
		Store:     store,
		Handler: func(ctx context.Context, input map[string]any) workflow.Outcome {
			return workflow.Single(workflow.NewRunResponse("The End."))
		},
		Descriptor: workflow.HandlerDescriptor{HasCustomLogic: true},
		Logger:     telemetry.NewClueLogger(),
		Metrics:    telemetry.NewClueMetrics(),
		Tracer:     telemetry.NewClueTracer(),
	})
	if err != nil {
		log.Fatalf(ctx, err, "failed to build workflow")
	}

	outcome, err = single.Execute(ctx, map[string]any{"topic": "endings"})
	if err != nil {
		log.Fatalf(ctx, err, "single run failed")
	}
	log.Print(ctx,
		log.KV{K: "run-id", V: outcome.Single.RunID},
		log.KV{K: "content", V: outcome.Single.Content},
		log.KV{K: "history-runs", V: single.History().Len()},
	)

	if err := single.RenameSession(ctx, single.SessionID, "storytime"); err != nil {
		log.Fatalf(ctx, err, "rename failed")
	}
	log.Print(ctx, log.KV{K: "session-id", V: single.SessionID}, log.KV{K: "session-name", V: "storytime"})
}

// buildStore constructs the configured workflow.Store and a cleanup function
// that releases backend connections.
func buildStore(ctx context.Context, cfg StoreConfig) (workflow.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store, err := redisstore.New(redisstore.Options{
			Client:    rdb,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = rdb.Close() }, nil
	case "mongo":
		mc, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, noop, err
		}
		cl, err := clientsmongo.New(clientsmongo.Options{
			Client:     mc,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, noop, err
		}
		store, err := mongostore.NewStore(cl)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = mc.Disconnect(context.Background()) }, nil
	default:
		return inmem.New(), noop, nil
	}
}

// buildSink wires a Pulse-backed sink over the demo's Redis connection.
func buildSink(cfg Config) (workflow.Sink, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})
	client, err := clientspulse.New(clientspulse.Options{
		Redis:        rdb,
		StreamMaxLen: cfg.Stream.MaxLen,
	})
	if err != nil {
		return nil, err
	}
	streams, err := pulsestream.NewRunStreams(pulsestream.RunStreamsOptions{Client: client})
	if err != nil {
		return nil, err
	}
	return streams.Sink(), nil
}
