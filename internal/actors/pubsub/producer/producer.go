package producer

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/metrics"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// UIDAttribute is the message attribute carrying the account uid.
const UIDAttribute = "uid"

// NewProducer creates a new producer. Messages of the same account are published in order.
func NewProducer(topic *pubsub.Topic) (*Producer, error) {
	if topic == nil {
		return nil, errors.New("topic is nil")
	}
	topic.EnableMessageOrdering = true
	return &Producer{topic: topic}, nil
}

// Producer is the pubsub producer of custom claims updates. The authentication service
// consumes the topic and applies the claims.
type Producer struct {
	topic *pubsub.Topic
}

// SetCustomClaims publishes a full overwrite of the claims of uid.
func (p *Producer) SetCustomClaims(ctx context.Context, uid string, claims model.Claims) error {
	err := p.send(ctx, uid, claims)
	metrics.ClaimsUpdates.WithLabelValues("pubsub", metrics.Result(err)).Inc()
	return err
}

func (p *Producer) send(ctx context.Context, uid string, claims model.Claims) error {
	msg, err := toProtoClaims(uid, claims)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error marshaling claims proto message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  map[string]string{UIDAttribute: uid},
		OrderingKey: uid,
	})
	// Block until the result is returned and a server-generated
	// ID is returned for the published message.
	if _, err := result.Get(ctx); err != nil {
		// a failed ordered publish pauses the key until resumed
		p.topic.ResumePublish(uid)
		return fmt.Errorf("pubsub: result.Get: %w", err)
	}
	return nil
}

func toProtoClaims(uid string, claims model.Claims) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(map[string]interface{}{
		"uid":    uid,
		"claims": map[string]interface{}(claims),
	})
	if err != nil {
		return nil, fmt.Errorf("error building claims message: %w", err)
	}
	return msg, nil
}

// DecodeClaims reads a message published by SetCustomClaims.
func DecodeClaims(data []byte) (string, model.Claims, error) {
	msg := new(structpb.Struct)
	if err := proto.Unmarshal(data, msg); err != nil {
		return "", nil, fmt.Errorf("error unmarshaling claims proto message: %w", err)
	}
	fields := msg.AsMap()
	uid, _ := fields["uid"].(string)
	claims, _ := fields["claims"].(map[string]interface{})
	return uid, model.Claims(claims), nil
}
