package presence

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// RedisPresence keeps one sorted set per conversation.
// Members are "user_id|connection_id", scores their expiry in unix milliseconds.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl, now: time.Now}
}

func key(conversationID domain.ConversationID) string {
	return keyPrefix + conversationID.String()
}

func member(p contract.Presence) string {
	return fmt.Sprintf("%s|%s", p.UserID, p.ConnectionID)
}

// Mark adds or refreshes an entry. The whole set expires when nobody refreshes it anymore.
func (r *RedisPresence) Mark(ctx context.Context, p contract.Presence) error {
	expiry := r.now().Add(r.ttl)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key(p.ConversationID), redis.Z{Score: float64(expiry.UnixMilli()), Member: member(p)})
		pipe.Expire(ctx, key(p.ConversationID), 2*r.ttl)
		return nil
	})
	return err
}

func (r *RedisPresence) Clear(ctx context.Context, p contract.Presence) error {
	return r.client.ZRem(ctx, key(p.ConversationID), member(p)).Err()
}

func (r *RedisPresence) Present(ctx context.Context, conversationID domain.ConversationID) (map[domain.UserID]struct{}, error) {
	members, err := r.client.ZRangeByScore(ctx, key(conversationID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(r.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	present := make(map[domain.UserID]struct{}, len(members))
	for _, m := range members {
		userID, _, _ := strings.Cut(m, "|")
		present[domain.UserID(userID)] = struct{}{}
	}
	return present, nil
}

// Prune drops expired entries of every conversation.
func (r *RedisPresence) Prune(ctx context.Context) error {
	upTo := strconv.FormatInt(r.now().UnixMilli(), 10)
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", upTo).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
