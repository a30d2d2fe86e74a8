package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/communityevents/internal/actors/records"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	"github.com/rbroggi/communityevents/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"

	log "github.com/sirupsen/logrus"
)

const metricsSource = "pubsub"

// SubscriberArgs contain the mandatory arguments to build a subscriber.
type SubscriberArgs struct {
	// Subscription is a pubsub subscription on the CDC topic.
	Subscription *pubsub.Subscription

	// Handler receives the decoded changes.
	Handler ports.ChangeEventHandler
}

// Subscriber is a pubsub async subscriber of document changes.
type Subscriber struct {
	subscription *pubsub.Subscription
	handler      ports.ChangeEventHandler
}

// NewSubscriber creates a subscriber
func NewSubscriber(args SubscriberArgs) *Subscriber {
	return &Subscriber{
		subscription: args.Subscription,
		handler:      args.Handler,
	}
}

// Consume starts the subscriber. This is a blocking method and should be started in it's own go-routine.
// The way to terminate the method is to cancel the context in input.
func (s *Subscriber) Consume(ctx context.Context) error {
	if err := s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := s.dispatch(ctx, msg.ID, msg.Data); err != nil {
			if errors.Is(err, ErrIgnoreEvent) {
				log.WithError(err).WithField("message_id", msg.ID).Debug("ignoring message")
				msg.Ack()
				return
			}
			log.WithError(err).WithField("message_id", msg.ID).Error("error handling change message")
			msg.Nack()
			return
		}
		msg.Ack()
	}); err != nil {
		return fmt.Errorf("error receiving messages from subscription: %w", err)
	}
	return nil
}

var (
	ErrIgnoreEvent = errors.New("event should be ignored")
)

// dispatch decodes one CDC message and hands it to the handler of its collection.
func (s *Subscriber) dispatch(ctx context.Context, id string, data []byte) error {
	msg := new(debeziumMessage)
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("json unmarshal error: %w", err)
	}
	collection := msg.Payload.Source.Collection

	var err error
	switch collection {
	case records.Participations:
		err = route(ctx, id, msg.Payload, records.DecodeParticipation, s.handler.HandleParticipationChange)
	case records.Users:
		err = route(ctx, id, msg.Payload, records.DecodeUser, s.handler.HandleUserChange)
	case records.Events:
		err = route(ctx, id, msg.Payload, records.DecodeEvent, s.handler.HandleEventChange)
	default:
		return fmt.Errorf("%w: collection %q", ErrIgnoreEvent, collection)
	}

	result := metrics.Result(err)
	if errors.Is(err, ErrIgnoreEvent) {
		result = metrics.ResultSkipped
	}
	metrics.ChangesHandled.WithLabelValues(metricsSource, collection, result).Inc()
	return err
}

func route[T any](
	ctx context.Context,
	id string,
	p payload,
	decode func(bson.Raw) (model.Document[T], error),
	handle func(context.Context, model.ChangeEvent[T]) error,
) error {
	change, err := toChangeEvent(id, p, decode)
	if err != nil {
		return err
	}
	return handle(ctx, change)
}

func toChangeEvent[T any](id string, p payload, decode func(bson.Raw) (model.Document[T], error)) (model.ChangeEvent[T], error) {
	change := model.ChangeEvent[T]{ID: id}
	image := func(extJSON *string) (*model.Document[T], error) {
		if extJSON == nil || *extJSON == "" || *extJSON == "null" {
			return nil, nil
		}
		doc, err := records.DecodeExtJSON([]byte(*extJSON), decode)
		if err != nil {
			return nil, err
		}
		return &doc, nil
	}

	before, err := image(p.Before)
	if err != nil {
		return change, fmt.Errorf("error decoding before image: %w", err)
	}
	after, err := image(p.After)
	if err != nil {
		return change, fmt.Errorf("error decoding after image: %w", err)
	}

	switch p.Op {
	case "c", "r":
		if after == nil {
			return change, fmt.Errorf("%w: %s without after image", ErrIgnoreEvent, p.Op)
		}
		change.After = after
	case "u":
		if before == nil || after == nil {
			return change, fmt.Errorf("%w: update without both images", ErrIgnoreEvent)
		}
		change.Before, change.After = before, after
	case "d":
		if before == nil {
			before, err = keyOnly[T](p.Filter)
			if err != nil {
				return change, err
			}
		}
		change.Before = before
	default:
		return change, fmt.Errorf("%w: operation %q", ErrIgnoreEvent, p.Op)
	}
	return change, nil
}

// keyOnly builds a document carrying only the id found in the delete filter.
func keyOnly[T any](filter *string) (*model.Document[T], error) {
	if filter == nil || *filter == "" {
		return nil, fmt.Errorf("%w: delete without before image or filter", ErrIgnoreEvent)
	}
	var key struct {
		ID interface{} `bson:"_id"`
	}
	if err := bson.UnmarshalExtJSON([]byte(*filter), false, &key); err != nil {
		return nil, fmt.Errorf("error decoding delete filter: %w", err)
	}
	id := records.IDString(key.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: delete filter without _id", ErrIgnoreEvent)
	}
	return &model.Document[T]{ID: id}, nil
}

// debeziumMessage is the envelope of the Debezium MongoDB connector. Document images are
// extended JSON strings.
type debeziumMessage struct {
	Payload payload `json:"payload"`
}

type payload struct {
	Op     string  `json:"op"`
	Source source  `json:"source"`
	Before *string `json:"before"`
	After  *string `json:"after"`
	Filter *string `json:"filter"`
}

type source struct {
	DB         string `json:"db"`
	Collection string `json:"collection"`
}
