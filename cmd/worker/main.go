package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/go-pg/pg/v10"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	gatewayactor "github.com/rbroggi/communityevents/internal/actors/gateway"
	grpcactor "github.com/rbroggi/communityevents/internal/actors/grpc"
	minioactor "github.com/rbroggi/communityevents/internal/actors/minio"
	mongoactor "github.com/rbroggi/communityevents/internal/actors/mongo"
	postgresactor "github.com/rbroggi/communityevents/internal/actors/postgres"
	produceractor "github.com/rbroggi/communityevents/internal/actors/pubsub/producer"
	subscriberactor "github.com/rbroggi/communityevents/internal/actors/pubsub/subscriber"
	"github.com/rbroggi/communityevents/internal/config"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	"github.com/rbroggi/communityevents/internal/core/usecase"
	log "github.com/sirupsen/logrus"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	// Only log the DebugLevel severity or above. LOG_LEVEL overrides it in run.
	log.SetLevel(log.DebugLevel)
}

var (
	grpcServerEndpoint = flag.String("grpc-server-endpoint", "localhost:50052", "gRPC server endpoint")
	httpServerEndpoint = flag.String("http-server-endpoint", "localhost:8081", "HTTP server endpoint")
)

func run() error {
	cfg := config.Load()
	log.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URL))
	if err != nil {
		return fmt.Errorf("error connecting to mongo: %w", err)
	}
	defer client.Disconnect(context.Background())
	if err := client.Ping(ctx, nil); err != nil {
		log.WithError(err).Error("db does not appear to be reachable")
		return err
	}

	store, err := mongoactor.NewMongoDB(mongoactor.MongoDBArgs{Database: client.Database(cfg.Mongo.Database)})
	if err != nil {
		log.WithError(err).Error("could not initialize mongo actor")
		return err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	dependencies := map[string]grpcactor.Pinger{"mongo": store}

	claims, closeClaims, err := claimsSink(ctx, cfg, dependencies)
	if err != nil {
		return err
	}
	defer closeClaims()

	images, err := objectStore(cfg)
	if err != nil {
		return err
	}
	if err := images.EnsureBucket(ctx); err != nil {
		return err
	}
	dependencies["minio"] = images

	notifierArgs := usecase.ParticipationNotifierArgs{Repository: store, Outbox: store}
	router := usecase.NewRouter(usecase.RouterArgs{
		Participations: []ports.DocumentChangeHandler[model.EventParticipation]{
			usecase.NewParticipationCreatedHandler(notifierArgs),
			usecase.NewParticipationUpdatedHandler(notifierArgs),
		},
		Users:  []ports.DocumentChangeHandler[model.User]{usecase.NewRoleUpdatedHandler(claims)},
		Events: []ports.DocumentChangeHandler[model.Event]{usecase.NewEventDeletedHandler(images)},
	})

	health := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{Dependencies: dependencies})
	mux, err := gatewayactor.NewMux(gatewayactor.GatewayArgs{Health: health})
	if err != nil {
		return err
	}
	httpServer := &http.Server{Addr: *httpServerEndpoint, Handler: mux}

	lis, err := net.Listen("tcp", *grpcServerEndpoint)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	health.Register(s)
	// Register reflection service on gRPC server.
	reflection.Register(s)

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.CDCSource {
	case config.CDCSourceChangeStream:
		if err := store.EnablePreImages(ctx); err != nil {
			return err
		}
		g.Go(func() error { return store.WatchParticipations(gctx, router) })
		g.Go(func() error { return store.WatchUsers(gctx, router) })
		g.Go(func() error { return store.WatchEvents(gctx, router) })
	case config.CDCSourcePubSub:
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return err
		}
		defer psClient.Close()
		subscriber := subscriberactor.NewSubscriber(subscriberactor.SubscriberArgs{
			Subscription: psClient.Subscription(cfg.PubSub.CDCSubscription),
			Handler:      router,
		})
		g.Go(func() error { return subscriber.Consume(gctx) })
	default:
		return fmt.Errorf("unknown CDC_SOURCE %q", cfg.CDCSource)
	}

	g.Go(func() error {
		health.Run(gctx, cfg.HealthInterval)
		return nil
	})
	g.Go(func() error { return s.Serve(lis) })
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.GracefulStop()
		return httpServer.Shutdown(context.Background())
	})

	log.
		WithField("http-server-addr", *httpServerEndpoint).
		WithField("grpc-server-addr", *grpcServerEndpoint).
		WithField("cdc-source", cfg.CDCSource).
		WithField("claims-sink", cfg.ClaimsSink).
		Info("worker up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the worker")

	// Wait for signal
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		select {
		case <-ch:
			cancel()
		case <-gctx.Done():
		}
	}()

	return g.Wait()
}

// claimsSink builds the configured claims sink and registers it as a health dependency.
func claimsSink(ctx context.Context, cfg config.Config, dependencies map[string]grpcactor.Pinger) (ports.ClaimsSetter, func(), error) {
	switch cfg.ClaimsSink {
	case config.ClaimsSinkPostgres:
		opts, err := pg.ParseURL(cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("error parsing postgres url: %w", err)
		}
		db := pg.Connect(opts)
		sink, err := postgresactor.NewPostgresDB(postgresactor.PostgresDBArgs{DB: db})
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		dependencies["postgres"] = sink
		return sink, func() { db.Close() }, nil
	case config.ClaimsSinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		topic := client.Topic(cfg.PubSub.ClaimsTopic)
		sink, err := produceractor.NewProducer(topic)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return sink, func() {
			topic.Stop()
			client.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown CLAIMS_SINK %q", cfg.ClaimsSink)
}

func objectStore(cfg config.Config) (*minioactor.ObjectStore, error) {
	var opts []minioactor.ObjectStoreOptArgs
	if cfg.MinIO.UseSSL {
		opts = append(opts, minioactor.WithSSL())
	}
	if cfg.MinIO.Region != "" {
		opts = append(opts, minioactor.WithRegion(cfg.MinIO.Region))
	}
	return minioactor.NewObjectStore(minioactor.ObjectStoreArgs{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
	}, opts...)
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		panic(err)
	}
}
