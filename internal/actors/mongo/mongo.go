package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rbroggi/communityevents/internal/actors/records"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	"github.com/rbroggi/communityevents/internal/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is a mongo adapter for the document store and the mail outbox.
type MongoDB struct {
	db             *mongo.Database
	users          *mongo.Collection
	events         *mongo.Collection
	participations *mongo.Collection
	mail           *mongo.Collection
	nowFunc        func() time.Time
	idFunc         func() string
	backOff        func() backoff.BackOff
}

// MongoDBArgs are the mandatory arguments for the creation of a MongoDB
type MongoDBArgs struct {
	// Database holds the users, events, event_participations and mail collections.
	Database *mongo.Database
}

// MongoDBOptArgs are the optional arguments for building a MongoDB
type MongoDBOptArgs = func(*MongoDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.nowFunc = nowFunc
	}
}

// WithIDFunc can be used to override the generation of document ids.
func WithIDFunc(idFunc func() string) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.idFunc = idFunc
	}
}

// WithHandlerBackOff overrides the retry policy of failing change handlers. The factory is called once per change.
func WithHandlerBackOff(backOff func() backoff.BackOff) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.backOff = backOff
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 5)
}

// NewMongoDB creates a new MongoDB.
func NewMongoDB(args MongoDBArgs, optArgs ...MongoDBOptArgs) (*MongoDB, error) {
	if args.Database == nil {
		return nil, errors.New("nil database passed to mongo adapter")
	}
	m := &MongoDB{
		db:             args.Database,
		users:          args.Database.Collection(records.Users),
		events:         args.Database.Collection(records.Events),
		participations: args.Database.Collection(records.Participations),
		mail:           args.Database.Collection(records.Mail),
		nowFunc:        func() time.Time { return time.Now().UTC() },
		idFunc:         uuid.NewString,
		backOff:        defaultBackOff,
	}
	for _, opt := range optArgs {
		opt(m)
	}
	return m, nil
}

// EnsureIndexes creates the indexes the adapter relies on. The unique dedupKey index is what
// makes Enqueue idempotent.
func (p *MongoDB) EnsureIndexes(ctx context.Context) error {
	sets := []struct {
		collection *mongo.Collection
		models     []mongo.IndexModel
	}{
		{
			collection: p.mail,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "dedupKey", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_mail_dedupkey"),
			}},
		},
		{
			collection: p.events,
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "startDate", Value: 1}, {Key: "emailNotification", Value: 1}},
				Options: options.Index().SetName("idx_events_startdate_notification"),
			}},
		},
		{
			collection: p.participations,
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "eventId", Value: 1}, {Key: "status", Value: 1}, {Key: "_id", Value: 1}},
					Options: options.Index().SetName("idx_participations_event_status__id"),
				},
				{
					Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "eventId", Value: 1}},
					Options: options.Index().SetName("idx_participations_user_event"),
				},
			},
		},
	}
	for _, set := range sets {
		if _, err := set.collection.Indexes().CreateMany(ctx, set.models); err != nil {
			return fmt.Errorf("error creating indexes on %s: %w", set.collection.Name(), err)
		}
	}
	return nil
}

// EnablePreImages turns on pre-images for the watched collections so updates carry their previous state.
// It requires MongoDB 6.0 or newer.
func (p *MongoDB) EnablePreImages(ctx context.Context) error {
	for _, name := range []string{records.Users, records.Events, records.Participations} {
		cmd := bson.D{
			{Key: "collMod", Value: name},
			{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
		}
		if err := p.db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("error enabling pre-images on %s: %w", name, err)
		}
	}
	return nil
}

// Ping checks the connection to the primary.
func (p *MongoDB) Ping(ctx context.Context) error {
	return p.db.Client().Ping(ctx, nil)
}

// GetEvent returns the event. It returns model.ErrNotFound if the event does not exist.
func (p *MongoDB) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var r records.EventRecord
	if err := p.findOne(ctx, p.events, id, &r); err != nil {
		return nil, err
	}
	e := r.ToEvent()
	return &e, nil
}

// GetUser returns the user. It returns model.ErrNotFound if the user does not exist.
func (p *MongoDB) GetUser(ctx context.Context, id string) (*model.User, error) {
	var r records.UserRecord
	if err := p.findOne(ctx, p.users, id, &r); err != nil {
		return nil, err
	}
	u := r.ToUser()
	return &u, nil
}

// GetParticipation returns the participation. It returns model.ErrNotFound if it does not exist.
func (p *MongoDB) GetParticipation(ctx context.Context, id string) (*model.EventParticipation, error) {
	var r records.ParticipationRecord
	if err := p.findOne(ctx, p.participations, id, &r); err != nil {
		return nil, err
	}
	participation := r.ToParticipation()
	return &participation, nil
}

func (p *MongoDB) findOne(ctx context.Context, collection *mongo.Collection, id string, out interface{}) error {
	err := collection.FindOne(ctx, records.IDFilter(id)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading %s [%s]: %w", collection.Name(), id, err)
	}
	return nil
}

// ListEvents list events matching the parameters in input, ordered by _id.
func (p *MongoDB) ListEvents(ctx context.Context, query ports.ListEventsQuery) (*ports.ListEventsResult, error) {
	filters := bson.M{}
	timeFilter := bson.M{}
	if !query.StartFrom.IsZero() {
		timeFilter["$gte"] = query.StartFrom
	}
	if !query.StartTo.IsZero() {
		timeFilter["$lte"] = query.StartTo
	}
	if len(timeFilter) > 0 {
		filters["startDate"] = timeFilter
	}
	if query.OnlyEmailNotification {
		filters["emailNotification"] = true
	}

	var found []records.EventRecord
	if err := p.find(ctx, p.events, filters, query.Limit, query.Offset, &found); err != nil {
		return nil, err
	}
	events := make([]model.Event, len(found))
	for i, r := range found {
		events[i] = r.ToEvent()
	}
	return &ports.ListEventsResult{Events: events}, nil
}

// ListParticipations list participations matching the parameters in input, ordered by _id.
func (p *MongoDB) ListParticipations(ctx context.Context, query ports.ListParticipationsQuery) (*ports.ListParticipationsResult, error) {
	filters := bson.M{}
	if query.EventID != "" {
		filters["eventId"] = query.EventID
	}
	if query.UserID != "" {
		filters["userId"] = query.UserID
	}
	if query.Status != "" {
		filters["status"] = string(query.Status)
	}
	if query.OnlyEmailOptIn {
		filters["emailOptIn"] = true
	}

	var found []records.ParticipationRecord
	if err := p.find(ctx, p.participations, filters, query.Limit, query.Offset, &found); err != nil {
		return nil, err
	}
	participations := make([]model.EventParticipation, len(found))
	for i, r := range found {
		participations[i] = r.ToParticipation()
	}
	return &ports.ListParticipationsResult{Participations: participations}, nil
}

func (p *MongoDB) find(ctx context.Context, collection *mongo.Collection, filters bson.M, limit, offset uint32, out interface{}) error {
	opts := new(options.FindOptions)
	if limit != uint32(0) {
		l := int64(limit)
		opts.Limit = &l
	}
	if offset != uint32(0) {
		s := int64(offset)
		opts.Skip = &s
	}
	opts = opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := collection.Find(ctx, filters, opts)
	if err != nil {
		return fmt.Errorf("error querying %s: %w", collection.Name(), err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("error reading %s: %w", collection.Name(), err)
	}
	return nil
}

// SaveParticipation will save a new participation in the database. An empty ID is generated.
func (p *MongoDB) SaveParticipation(ctx context.Context, participation *model.EventParticipation) error {
	if participation == nil {
		return errors.New("nil participation passed to save method")
	}
	if participation.ID == "" {
		participation.ID = p.idFunc()
	}
	if _, err := p.participations.InsertOne(ctx, records.FromParticipation(*participation)); err != nil {
		return fmt.Errorf("error inserting participation [%s]: %w", participation.ID, err)
	}
	return nil
}

// UpdateParticipation overwrites the mutable fields of a participation.
// It returns model.ErrNotFound if the participation does not exist.
func (p *MongoDB) UpdateParticipation(ctx context.Context, participation *model.EventParticipation) error {
	if participation == nil {
		return errors.New("nil participation passed to update method")
	}
	r := records.FromParticipation(*participation)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: r.Status},
		{Key: "registeredAt", Value: r.RegisteredAt},
		{Key: "cancelledAt", Value: r.CancelledAt},
		{Key: "emailOptIn", Value: r.EmailOptIn},
	}}}
	res, err := p.participations.UpdateOne(ctx, records.IDFilter(participation.ID), update)
	if err != nil {
		return fmt.Errorf("error updating participation [%s]: %w", participation.ID, err)
	}
	if res.MatchedCount < 1 {
		return model.ErrNotFound
	}
	return nil
}

// Enqueue writes the entry to the mail outbox. It returns model.ErrAlreadyEnqueued if an entry
// with the same dedup key exists.
func (p *MongoDB) Enqueue(ctx context.Context, entry model.MailEntry) error {
	if entry.DedupKey == "" {
		return fmt.Errorf("%w: mail entry without dedup key", model.ErrInvalidArgument)
	}
	_, err := p.mail.InsertOne(ctx, records.FromMailEntry(p.idFunc(), entry, p.nowFunc()))
	if mongo.IsDuplicateKeyError(err) {
		metrics.MailEnqueued.WithLabelValues(metrics.ResultDuplicate).Inc()
		return model.ErrAlreadyEnqueued
	}
	metrics.MailEnqueued.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("error inserting mail [%s]: %w", entry.DedupKey, err)
	}
	return nil
}
