package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rbroggi/communityevents/internal/actors/records"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	"github.com/rbroggi/communityevents/internal/metrics"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// ResumeTokens is the collection keeping the last handled change per watched collection.
	ResumeTokens = "change_stream_tokens"

	sourceChangeStream = "changestream"

	// ChangeStreamHistoryLost is returned when a resume token fell off the oplog.
	codeChangeStreamHistoryLost = 286
)

// changeStreamEvent is the part of a change stream document the watcher reads.
type changeStreamEvent struct {
	OperationType            string        `bson:"operationType"`
	DocumentKey              bson.RawValue `bson:"documentKey"`
	FullDocument             bson.RawValue `bson:"fullDocument"`
	FullDocumentBeforeChange bson.RawValue `bson:"fullDocumentBeforeChange"`
}

type resumeTokenRecord struct {
	Collection string    `bson:"_id"`
	Token      bson.Raw  `bson:"token"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

// WatchParticipations delivers the changes of event_participations to handler until ctx is done.
func (p *MongoDB) WatchParticipations(ctx context.Context, handler ports.ChangeEventHandler) error {
	return watch(ctx, p, p.participations, records.DecodeParticipation, handler.HandleParticipationChange)
}

// WatchUsers delivers the changes of users to handler until ctx is done.
func (p *MongoDB) WatchUsers(ctx context.Context, handler ports.ChangeEventHandler) error {
	return watch(ctx, p, p.users, records.DecodeUser, handler.HandleUserChange)
}

// WatchEvents delivers the changes of events to handler until ctx is done.
func (p *MongoDB) WatchEvents(ctx context.Context, handler ports.ChangeEventHandler) error {
	return watch(ctx, p, p.events, records.DecodeEvent, handler.HandleEventChange)
}

// watch runs a change stream on collection. A failing handler is retried with backoff; once retries are
// exhausted watch returns without advancing the resume token. Redeliveries are absorbed by the outbox dedup keys.
func watch[T any](
	ctx context.Context,
	p *MongoDB,
	collection *mongo.Collection,
	decode func(bson.Raw) (model.Document[T], error),
	handle func(context.Context, model.ChangeEvent[T]) error,
) error {
	logger := log.WithField("collection", collection.Name())
	stream, err := p.openStream(ctx, collection)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())
	logger.Info("watching collection")

	for stream.Next(ctx) {
		var ev changeStreamEvent
		if err := stream.Decode(&ev); err != nil {
			logger.WithError(err).Error("error decoding change")
			p.advance(ctx, logger, collection.Name(), stream.ResumeToken())
			continue
		}
		id, _ := stream.Current.Lookup("_id", "_data").StringValueOK()
		change, ok, err := toChangeEvent(id, ev, decode)
		if err != nil {
			logger.WithError(err).WithField("change_id", id).Error("error decoding changed document")
			metrics.ChangesHandled.WithLabelValues(sourceChangeStream, collection.Name(), metrics.ResultError).Inc()
		} else if !ok {
			logger.WithField("change_id", id).WithField("operation", ev.OperationType).Warn("skipping change without usable images")
			metrics.ChangesHandled.WithLabelValues(sourceChangeStream, collection.Name(), metrics.ResultSkipped).Inc()
		} else {
			err := handleWithRetry(ctx, p.backOff(), func() error { return handle(ctx, change) })
			metrics.ChangesHandled.WithLabelValues(sourceChangeStream, collection.Name(), metrics.Result(err)).Inc()
			if err != nil {
				// the token stays on the previous change so a restarted watcher delivers this one again
				return fmt.Errorf("error handling change [%s] on %s: %w", id, collection.Name(), err)
			}
		}
		p.advance(ctx, logger, collection.Name(), stream.ResumeToken())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("change stream on %s failed: %w", collection.Name(), err)
	}
	logger.Info("stopped watching collection")
	return nil
}

// handleWithRetry calls handle until it succeeds or the backoff stops. Cancelling ctx stops it.
func handleWithRetry(ctx context.Context, b backoff.BackOff, handle func() error) error {
	attempt := 0
	return backoff.RetryNotify(handle, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		attempt++
		log.WithError(err).WithField("attempt", attempt).WithField("retry_in", next).Warn("error handling change, retrying")
	})
}

func (p *MongoDB) advance(ctx context.Context, logger *log.Entry, collection string, token bson.Raw) {
	if err := p.saveResumeToken(ctx, collection, token); err != nil {
		logger.WithError(err).Warn("error saving resume token")
	}
}

func (p *MongoDB) openStream(ctx context.Context, collection *mongo.Collection) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{
		{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}},
	}}}}}}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	token, err := p.loadResumeToken(ctx, collection.Name())
	if err != nil {
		return nil, err
	}
	if token != nil {
		opts.SetResumeAfter(token)
	}
	stream, err := collection.Watch(ctx, pipeline, opts)
	var cmdErr mongo.CommandError
	if token != nil && errors.As(err, &cmdErr) && cmdErr.Code == codeChangeStreamHistoryLost {
		log.WithField("collection", collection.Name()).Warn("resume token lost from the oplog, watching from now")
		stream, err = collection.Watch(ctx, pipeline, opts.SetResumeAfter(nil))
	}
	if err != nil {
		return nil, fmt.Errorf("error opening change stream on %s: %w", collection.Name(), err)
	}
	return stream, nil
}

func (p *MongoDB) loadResumeToken(ctx context.Context, collection string) (bson.Raw, error) {
	var r resumeTokenRecord
	err := p.db.Collection(ResumeTokens).FindOne(ctx, bson.M{"_id": collection}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading resume token of %s: %w", collection, err)
	}
	return r.Token, nil
}

func (p *MongoDB) saveResumeToken(ctx context.Context, collection string, token bson.Raw) error {
	if token == nil {
		return nil
	}
	_, err := p.db.Collection(ResumeTokens).ReplaceOne(ctx,
		bson.M{"_id": collection},
		resumeTokenRecord{Collection: collection, Token: token, UpdatedAt: p.nowFunc()},
		options.Replace().SetUpsert(true))
	return err
}

// toChangeEvent builds the change handed to the router. It reports false for updates whose previous
// state is unknown, since no handler can tell what changed.
func toChangeEvent[T any](id string, ev changeStreamEvent, decode func(bson.Raw) (model.Document[T], error)) (model.ChangeEvent[T], bool, error) {
	change := model.ChangeEvent[T]{ID: id}
	image := func(v bson.RawValue) (*model.Document[T], error) {
		raw, ok := v.DocumentOK()
		if !ok {
			return nil, nil
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		return &doc, nil
	}

	before, err := image(ev.FullDocumentBeforeChange)
	if err != nil {
		return change, false, fmt.Errorf("error decoding pre-image: %w", err)
	}
	after, err := image(ev.FullDocument)
	if err != nil {
		return change, false, fmt.Errorf("error decoding post-image: %w", err)
	}

	switch ev.OperationType {
	case "insert":
		if after == nil {
			return change, false, nil
		}
		change.After = after
	case "update", "replace":
		if before == nil || after == nil {
			return change, false, nil
		}
		change.Before, change.After = before, after
	case "delete":
		if before == nil {
			var key struct {
				ID interface{} `bson:"_id"`
			}
			raw, ok := ev.DocumentKey.DocumentOK()
			if !ok {
				return change, false, nil
			}
			if err := bson.Unmarshal(raw, &key); err != nil {
				return change, false, fmt.Errorf("error decoding document key: %w", err)
			}
			before = &model.Document[T]{ID: records.IDString(key.ID)}
		}
		change.Before = before
	default:
		return change, false, nil
	}
	return change, true, nil
}
