package datasource

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/common/validation"
	"github.com/vnykmshr/flowguard/pkg/flow"
)

// RedisConfig configures a RedisSource.
type RedisConfig struct {
	// Key holds the rule document.
	Key string

	// Channel carries rule documents pushed by publishers. Empty disables
	// the subscription.
	Channel string

	// Logger receives subscription failures. If nil, the standard logrus
	// logger is used.
	Logger logger.FieldLogger
}

// RedisSource loads flow rules from a Redis key and applies documents
// published on a Redis channel as they arrive.
type RedisSource struct {
	client redis.UniversalClient
	loader RuleLoader
	cfg    RedisConfig
	log    logger.FieldLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
	closed bool
}

// NewRedisSource creates a source that feeds loader from client.
func NewRedisSource(client redis.UniversalClient, loader RuleLoader, cfg RedisConfig) (*RedisSource, error) {
	if client == nil {
		return nil, gferrors.NewValidationError("datasource", "client", nil, "cannot be nil")
	}
	if loader == nil {
		return nil, gferrors.NewValidationError("datasource", "loader", nil, "cannot be nil")
	}
	if err := validation.NotEmpty("datasource", "key", cfg.Key); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.StandardLogger()
	}
	return &RedisSource{
		client: client,
		loader: loader,
		cfg:    cfg,
		log:    cfg.Logger.WithFields(logger.Fields{"key": cfg.Key, "channel": cfg.Channel}),
	}, nil
}

// Load reads the rule document stored at Key and hands it to the loader.
// A missing key loads nothing and is not an error.
func (s *RedisSource) Load(ctx context.Context) (bool, error) {
	data, err := s.client.Get(ctx, s.cfg.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.log.Warn("rule key does not exist, keeping current flow rules")
		return false, nil
	}
	if err != nil {
		return false, gferrors.NewOperationError("datasource", "get", err).WithContext(s.cfg.Key)
	}
	return s.apply(data)
}

func (s *RedisSource) apply(data []byte) (bool, error) {
	rules, err := ParseRules(data)
	if err != nil {
		return false, gferrors.NewOperationError("datasource", "parse", err).WithContext(s.cfg.Key)
	}
	return s.loader.LoadRules(rules)
}

// Start loads the stored document and subscribes to Channel. It returns
// once the subscription is confirmed. Pushed documents are applied until
// Close is called or ctx is done.
func (s *RedisSource) Start(ctx context.Context) error {
	if _, err := s.Load(ctx); isSourceFailure(err) {
		return err
	}
	if s.cfg.Channel == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return gferrors.ErrClosed
	}
	if s.pubsub != nil {
		return nil
	}

	pubsub := s.client.Subscribe(ctx, s.cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return gferrors.NewOperationError("datasource", "subscribe", err).WithContext(s.cfg.Channel)
	}
	s.pubsub = pubsub
	s.done = make(chan struct{})
	go s.listen(ctx, pubsub.Channel(), s.done)
	return nil
}

func (s *RedisSource) listen(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			updated, err := s.apply([]byte(msg.Payload))
			if err != nil {
				s.log.WithError(err).Error("failed to apply pushed flow rules")
				continue
			}
			if updated {
				s.log.Info("flow rules updated from redis")
			}
		}
	}
}

// Publish stores rules at Key and pushes them on Channel.
func (s *RedisSource) Publish(ctx context.Context, rules []flow.Rule) error {
	data, err := MarshalRules(rules)
	if err != nil {
		return gferrors.NewOperationError("datasource", "marshal", err)
	}
	if err := s.client.Set(ctx, s.cfg.Key, data, 0).Err(); err != nil {
		return gferrors.NewOperationError("datasource", "set", err).WithContext(s.cfg.Key)
	}
	if s.cfg.Channel == "" {
		return nil
	}
	if err := s.client.Publish(ctx, s.cfg.Channel, data).Err(); err != nil {
		return gferrors.NewOperationError("datasource", "publish", err).WithContext(s.cfg.Channel)
	}
	return nil
}

// Close ends the subscription and waits for the listener to stop. The
// client is not closed.
func (s *RedisSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pubsub, done := s.pubsub, s.done
	s.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
