package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usage = "usage: pubsubsetup [-ordered] PROJECTID,TOPIC1:SUBSCRIPTION11:SUBSCRIPTION12,TOPIC2:SUBSCRIPTION21"

var (
	ordered = flag.Bool("ordered", false, "create subscriptions with message ordering enabled")
)

type topicLayout struct {
	topic         string
	subscriptions []string
}

// parseLayout reads the project id followed by topics and their subscriptions.
func parseLayout(arg string) (string, []topicLayout, error) {
	items := strings.Split(arg, ",")
	projectID := strings.ReplaceAll(items[0], " ", "")
	if projectID == "" {
		return "", nil, errors.New("missing project id")
	}
	var layouts []topicLayout
	for _, item := range items[1:] {
		parts := strings.Split(item, ":")
		l := topicLayout{topic: strings.ReplaceAll(parts[0], " ", "")}
		if l.topic == "" {
			return "", nil, fmt.Errorf("missing topic in %q", item)
		}
		for _, s := range parts[1:] {
			if s = strings.ReplaceAll(s, " ", ""); s != "" {
				l.subscriptions = append(l.subscriptions, s)
			}
		}
		layouts = append(layouts, l)
	}
	return projectID, layouts, nil
}

func alreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func setup(ctx context.Context, client *pubsub.Client, layouts []topicLayout, ordered bool) error {
	for _, l := range layouts {
		topic, err := client.CreateTopic(ctx, l.topic)
		if alreadyExists(err) {
			topic = client.Topic(l.topic)
		} else if err != nil {
			return fmt.Errorf("unable to create topic %s: %w", l.topic, err)
		}
		for _, s := range l.subscriptions {
			_, err := client.CreateSubscription(ctx, s, pubsub.SubscriptionConfig{
				Topic:                 topic,
				EnableMessageOrdering: ordered,
			})
			if err != nil && !alreadyExists(err) {
				return fmt.Errorf("unable to create subscription %s on topic %s: %w", s, l.topic, err)
			}
			log.WithField("topic", l.topic).WithField("subscription", s).Info("subscription ready")
		}
	}
	return nil
}

func main() {
	flag.Parse()
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if flag.NArg() < 1 {
		fmt.Println(usage)
		return
	}
	projectID, layouts, err := parseLayout(flag.Arg(0))
	if err != nil {
		log.WithError(err).Fatal(usage)
	}

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Fatal("unable to create client")
	}
	defer client.Close()

	if err := setup(ctx, client, layouts, *ordered); err != nil {
		log.WithError(err).WithField("project", projectID).Fatal("pubsub setup failed")
	}
}
