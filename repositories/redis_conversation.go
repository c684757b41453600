package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// RedisConversationRepository stores conversations under "conv:{id}".
// Membership is the set "members:{user_id}" of conversation ids.
type RedisConversationRepository struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewRedisConversationRepository(client *redis.Client, log *slog.Logger) *RedisConversationRepository {
	return &RedisConversationRepository{client: client, log: log, now: time.Now}
}

func membersKey(userID domain.UserID) string {
	return "members:" + userID.String()
}

// FindConversation always reads from Redis, a participant added by another process is seen at once.
func (r *RedisConversationRepository) FindConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	return readConversation(ctx, r.client, id)
}

func (r *RedisConversationRepository) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	if c.ID == "" {
		c.ID = domain.ConversationID(uuid.NewString())
	}
	c.Participants = lo.Uniq(c.Participants)
	c.CreatedAt = r.now().UTC()

	bytes, err := codec.Marshal(fromConversation(c))
	if err != nil {
		return domain.Conversation{}, err
	}
	if _, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeConversation(ctx, pipe, c, bytes, nil)
		return nil
	}); err != nil {
		return domain.Conversation{}, err
	}
	r.log.Debug("Conversation created", "conversation_id", c.ID, "participants", len(c.Participants))
	return c, nil
}

// UpdateConversation replaces the stored conversation, membership sets included.
func (r *RedisConversationRepository) UpdateConversation(ctx context.Context, c domain.Conversation) error {
	c.Participants = lo.Uniq(c.Participants)
	key := string(conversationKey(c.ID))
	for range maxTxRetries {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			previous, err := readConversation(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			c.CreatedAt = previous.CreatedAt
			bytes, err := codec.Marshal(fromConversation(c))
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				writeConversation(ctx, pipe, c, bytes, previous.Participants)
				return nil
			})
			return err
		}, key)
		if !stderrors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("conversation %s: %w", c.ID, redis.TxFailedErr)
}

// ListForUser returns the conversations of a user ordered by id.
func (r *RedisConversationRepository) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	ids, err := r.client.SMembers(ctx, membersKey(userID)).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	slices.Sort(ids)
	values, err := r.client.MGet(ctx, lo.Map(ids, func(id string, _ int) string {
		return string(conversationKey(domain.ConversationID(id)))
	})...).Result()
	if err != nil {
		return nil, err
	}

	conversations := make([]domain.Conversation, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var disk diskConversation
		if err = codec.Unmarshal([]byte(raw), &disk); err != nil {
			return nil, err
		}
		conversations = append(conversations, toConversation(disk))
	}
	return conversations, nil
}

func readConversation(ctx context.Context, client stringGetter, id domain.ConversationID) (domain.Conversation, error) {
	bytes, err := client.Get(ctx, string(conversationKey(id))).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrConversationNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var disk diskConversation
	if err = codec.Unmarshal(bytes, &disk); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk), nil
}

func writeConversation(ctx context.Context, pipe redis.Pipeliner, c domain.Conversation, bytes []byte, previous []domain.UserID) {
	pipe.Set(ctx, string(conversationKey(c.ID)), bytes, 0)
	removed, _ := lo.Difference(previous, c.Participants)
	for _, userID := range removed {
		pipe.SRem(ctx, membersKey(userID), c.ID.String())
	}
	for _, userID := range c.Participants {
		pipe.SAdd(ctx, membersKey(userID), c.ID.String())
	}
}
