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

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	gatewayactor "github.com/rbroggi/communityevents/internal/actors/gateway"
	grpcactor "github.com/rbroggi/communityevents/internal/actors/grpc"
	mongoactor "github.com/rbroggi/communityevents/internal/actors/mongo"
	"github.com/rbroggi/communityevents/internal/config"
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
	grpcServerEndpoint = flag.String("grpc-server-endpoint", "localhost:50051", "gRPC server endpoint")
	httpServerEndpoint = flag.String("http-server-endpoint", "localhost:8080", "HTTP server endpoint")
)

func run() error {
	cfg := config.Load()
	log.SetLevel(cfg.LogLevel)

	policy, err := usecase.ParseReRegistrationPolicy(cfg.ReRegistrationPolicy)
	if err != nil {
		return err
	}

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

	registration := usecase.NewRegistrationService(usecase.RegistrationServiceArgs{
		Repository:     store,
		Participations: store,
		Policy:         policy,
	})
	health := grpcactor.NewHealthService(grpcactor.HealthServiceArgs{
		Dependencies: map[string]grpcactor.Pinger{"mongo": store},
	})

	mux, err := gatewayactor.NewMux(gatewayactor.GatewayArgs{Registration: registration, Health: health})
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
		WithField("reregistration-policy", policy).
		Info("servers up or soon to be up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the server")

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

func main() {
	flag.Parse()

	if err := run(); err != nil {
		panic(err)
	}
}
