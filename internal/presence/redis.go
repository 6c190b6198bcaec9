package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis keeps one set per channel. Each write refreshes the set's TTL so
// a crashed relay's members age out.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("module", "presence").Str("addr", opts.Addr).Int("db", opts.DB).Msg("connected to Redis")
	return client, nil
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "voicelink", ttl: ttl}
}

func (r *Redis) key(channel domain.ChannelName) string {
	return fmt.Sprintf("%s:channel:%s:members", r.prefix, channel)
}

func (r *Redis) Add(ctx context.Context, channel domain.ChannelName, id domain.Identity) error {
	key := r.key(channel)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, string(id))
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add member to channel set: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, channel domain.ChannelName, id domain.Identity) error {
	if err := r.client.SRem(ctx, r.key(channel), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove member from channel set: %w", err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context, channel domain.ChannelName) ([]domain.Identity, error) {
	raw, err := r.client.SMembers(ctx, r.key(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel members from Redis: %w", err)
	}
	out := make([]domain.Identity, 0, len(raw))
	for _, s := range raw {
		out = append(out, domain.Identity(s))
	}
	sortIdentities(out)
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
