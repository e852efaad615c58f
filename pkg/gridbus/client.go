package gridbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// subscriptionBuffer sizes the delivery channel of a subscription. A clear or
// batch broadcast arrives at every agent at once, so the buffer is larger than
// a typical event stream needs.
const subscriptionBuffer = 64

// Client provides instance-scoped bus operations on top of Redis.
// All keys and channels are automatically namespaced with the instance name.
// The client is safe for concurrent use from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new bus client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: display instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Transmit publishes a message on a bus channel. reply names the channel the
// receivers should answer on (0 for none). Delivery is at most once.
func (c *Client) Transmit(ctx context.Context, channel, reply int, msg Message) error {
	payload, err := Encode(msg, reply)
	if err != nil {
		return err
	}

	if err := c.rdb.Publish(ctx, ChannelName(c.instanceName, channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s on channel %d: %w", msg.Action(), channel, err)
	}
	return nil
}

// Delivery is a decoded message together with the channel it arrived on.
type Delivery struct {
	Channel int
	Reply   int
	Message Message
}

// Subscription represents open bus channels.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	deliveries <-chan *Delivery
	errors     <-chan error
	cancel     func()
	once       sync.Once
}

// Deliveries returns the channel of decoded messages.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Deliveries() <-chan *Delivery {
	return s.deliveries
}

// Errors returns the channel of non-fatal subscription errors, such as
// envelopes that failed to decode. The subscription continues after errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Open subscribes to the given bus channels. It returns once Redis has
// confirmed the subscription, so messages transmitted afterwards are seen.
// Untagged traffic on the channels is dropped without reporting.
func (c *Client) Open(ctx context.Context, channels ...int) (*Subscription, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels to open")
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ChannelName(c.instanceName, ch)
	}

	pubsub := c.rdb.Subscribe(ctx, names...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to open channels %v: %w", channels, err)
	}

	return c.pump(ctx, pubsub), nil
}

// OpenAll subscribes to every bus channel of the instance. Used by monitors.
func (c *Client) OpenAll(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.PSubscribe(ctx, ChannelPattern(c.instanceName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to open all channels: %w", err)
	}

	return c.pump(ctx, pubsub), nil
}

func (c *Client) pump(ctx context.Context, pubsub *redis.PubSub) *Subscription {
	deliveries := make(chan *Delivery, subscriptionBuffer)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(deliveries)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				channel, ok := ParseChannelName(c.instanceName, msg.Channel)
				if !ok {
					continue
				}

				decoded, reply, err := Decode([]byte(msg.Payload))
				if errors.Is(err, ErrForeign) {
					continue
				}
				if err != nil {
					select {
					case errorsChan <- fmt.Errorf("channel %d: %w", channel, err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case deliveries <- &Delivery{Channel: channel, Reply: reply, Message: decoded}:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		deliveries: deliveries,
		errors:     errorsChan,
		cancel:     cancelFunc,
	}
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
