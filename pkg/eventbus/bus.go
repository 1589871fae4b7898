// Package eventbus carries inbound realtime frames from the transport to
// the event router over watermill, either in-process or through Redis
// Streams so several consumers can observe the same session.
package eventbus

import (
	"context"
	"strings"
	"sync"
	"time"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	Topic = "helpdesk.events"
	// MetadataEvent holds the realtime event name on every bus message.
	MetadataEvent = "event"
)

// ErrObserver is returned by Publish on a bus that only observes another
// process's feed.
var ErrObserver = errors.New("eventbus: observer bus does not publish")

type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	redis      *redis.Client
	group      string
	observe    bool
	topic      string
	logger     zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Build constructs a bus backed by Redis Streams when enabled and by an
// in-process channel otherwise.
//
// On Redis every bus reads through its own consumer group, named after the
// configured group and the consumer, so each process sees every entry. The
// group is positioned at the stream tail on every start.
func Build(ctx context.Context, s Settings) (*Bus, error) {
	logger := log.With().Str("component", "eventbus").Logger()
	wlogger := NewWatermillLogger(logger)

	if !s.RedisEnabled {
		gc := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, wlogger)
		return &Bus{publisher: gc, subscriber: gc, topic: Topic, logger: logger}, nil
	}

	if strings.TrimSpace(s.RedisAddr) == "" {
		return nil, errors.New("eventbus: redis address is empty")
	}
	consumer := s.RedisConsumer
	if consumer == "" {
		consumer = "ui-" + uuid.NewString()[:8]
	}
	group := GroupName(s.RedisGroup, consumer)

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	// rstream closes the client it is given, so the subscriber gets its own.
	subClient := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	if err := ResetGroupAtTail(ctx, client, Topic, group); err != nil {
		_ = subClient.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "eventbus: reset consumer group")
	}

	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	var pub message.Publisher
	if !s.RedisObserve {
		p, err := rstream.NewPublisher(rstream.PublisherConfig{
			Client:     client,
			Marshaller: marshaler,
		}, wlogger)
		if err != nil {
			_ = subClient.Close()
			_ = client.Close()
			return nil, errors.Wrap(err, "eventbus: redis publisher")
		}
		pub = p
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        subClient,
		Unmarshaller:  marshaler,
		ConsumerGroup: group,
		Consumer:      consumer,
		OldestId:      "$",
	}, wlogger)
	if err != nil {
		if pub != nil {
			_ = pub.Close()
		}
		_ = subClient.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "eventbus: redis subscriber")
	}

	logger.Info().
		Str("addr", s.RedisAddr).
		Str("group", group).
		Str("consumer", consumer).
		Bool("observe", s.RedisObserve).
		Msg("using redis streams")
	return &Bus{
		publisher:  pub,
		subscriber: sub,
		redis:      client,
		group:      group,
		observe:    s.RedisObserve,
		topic:      Topic,
		logger:     logger,
	}, nil
}

// GroupName derives the per-process consumer group.
func GroupName(base, consumer string) string {
	if base == "" {
		base = DefaultSettings().RedisGroup
	}
	return base + "-" + consumer
}

// ResetGroupAtTail creates the consumer group at the stream tail ($). An
// existing group with the same name is recreated there, dropping whatever
// it had not delivered yet.
func ResetGroupAtTail(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err == nil {
		log.Debug().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
		return nil
	}
	if !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	if err := client.XGroupDestroy(ctx, stream, group).Err(); err != nil {
		return err
	}
	if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil {
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("reset redis consumer group to $ (tail)")
	return nil
}

// Observing reports whether the bus only reads another process's feed.
func (b *Bus) Observing() bool { return b.observe }

// Publish puts one realtime event on the bus.
func (b *Bus) Publish(event string, data []byte) error {
	if event == "" {
		return errors.New("eventbus: empty event name")
	}
	if b.publisher == nil {
		return ErrObserver
	}
	msg := message.NewMessage(uuid.NewString(), append([]byte(nil), data...))
	msg.Metadata.Set(MetadataEvent, event)
	return errors.Wrapf(b.publisher.Publish(b.topic, msg), "eventbus: publish %s", event)
}

// HandleFrame publishes inbound transport frames, logging failures.
func (b *Bus) HandleFrame(event string, data []byte) {
	if err := b.Publish(event, data); err != nil {
		b.logger.Warn().Err(err).Str("event", event).Msg("dropping inbound frame")
	}
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	ch, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, errors.Wrap(err, "eventbus: subscribe")
	}
	return ch, nil
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if any(b.subscriber) != any(b.publisher) {
			if err := b.subscriber.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if b.redis != nil && b.group != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := b.redis.XGroupDestroy(ctx, b.topic, b.group).Err(); err != nil {
				b.logger.Debug().Err(err).Str("group", b.group).Msg("destroy consumer group")
			}
			cancel()
		}
		if b.publisher != nil {
			if err := b.publisher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		// The redis publisher closes the shared client itself.
		if b.redis != nil {
			if err := b.redis.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, err := range errs {
			if !errors.Is(err, redis.ErrClosed) {
				b.closeErr = errors.Wrap(err, "eventbus: close")
				break
			}
		}
	})
	return b.closeErr
}
