package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoactor "github.com/rbroggi/communityevents/internal/actors/mongo"
	scheduleractor "github.com/rbroggi/communityevents/internal/actors/scheduler"
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
	once = flag.Bool("once", false, "run the reminder immediately and exit")
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

	reminder := usecase.NewReminder(
		usecase.ReminderArgs{Repository: store, Outbox: store},
		usecase.WithBatchSize(cfg.Reminder.BatchSize),
	)
	scheduler, err := scheduleractor.NewScheduler(
		scheduleractor.SchedulerArgs{Reminder: reminder, Location: usecase.DefaultLocation},
		scheduleractor.WithSpec(cfg.Reminder.Spec),
		scheduleractor.WithRunTimeout(cfg.Reminder.RunTimeout),
	)
	if err != nil {
		return err
	}

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		<-ch
		cancel()
	}()

	if *once {
		return scheduler.RunOnce(ctx)
	}
	log.Info("scheduler up. listening to SIGTERM, SIGINT, SIGQUIT for stoping the scheduler")
	return scheduler.Start(ctx)
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		panic(err)
	}
}
