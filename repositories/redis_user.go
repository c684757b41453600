package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// maxTxRetries bounds the optimistic transactions replayed when a watched key changed.
const maxTxRetries = 10

// stringGetter is what reads need, a client or a transaction.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisUserRepository is the UserRepository layout in Redis, every process of the deployment shares it.
// "email:{email}" is claimed with SETNX, two registrations of one email can't both win.
type RedisUserRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisUserRepository(client *redis.Client) *RedisUserRepository {
	return &RedisUserRepository{client: client, now: time.Now}
}

func (r *RedisUserRepository) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.ID = domain.UserID(uuid.NewString())
	u.CreatedAt = r.now().UTC()

	email := string(emailKey(u.Email))
	claimed, err := r.client.SetNX(ctx, email, u.ID.String(), 0).Result()
	if err != nil {
		return domain.User{}, err
	}
	if !claimed {
		return domain.User{}, errors.ErrUserAlreadyExists
	}
	bytes, err := encodeUser(u)
	if err == nil {
		err = r.client.Set(ctx, string(userKey(u.ID)), bytes, 0).Err()
	}
	if err != nil {
		r.client.Del(ctx, email)
		return domain.User{}, err
	}
	return u, nil
}

func (r *RedisUserRepository) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	return readUser(ctx, r.client, id)
}

func (r *RedisUserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	id, err := r.client.Get(ctx, string(emailKey(email))).Result()
	if stderrors.Is(err, redis.Nil) {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, email)
	}
	if err != nil {
		return domain.User{}, err
	}
	return readUser(ctx, r.client, domain.UserID(id))
}

// UpdateUser rewrites username and email. A new email is claimed before the user is written
// and the previous one released after.
func (r *RedisUserRepository) UpdateUser(ctx context.Context, u domain.User) error {
	previous, err := r.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	moved := !strings.EqualFold(previous.Email, u.Email)
	if moved {
		claimed, err := r.client.SetNX(ctx, string(emailKey(u.Email)), u.ID.String(), 0).Result()
		if err != nil {
			return err
		}
		if !claimed {
			return errors.ErrUserAlreadyExists
		}
	}

	err = r.modify(ctx, u.ID, func(user *domain.User) error {
		user.Username = u.Username
		user.Email = u.Email
		return nil
	})
	switch {
	case err != nil && moved:
		r.client.Del(ctx, string(emailKey(u.Email)))
	case moved:
		err = r.client.Del(ctx, string(emailKey(previous.Email))).Err()
	}
	return err
}

func (r *RedisUserRepository) AddDeviceToken(ctx context.Context, id domain.UserID, token string) error {
	return r.modify(ctx, id, func(user *domain.User) error {
		if !lo.Contains(user.DeviceTokens, token) {
			user.DeviceTokens = append(user.DeviceTokens, token)
		}
		return nil
	})
}

// modify applies change to the stored user, replayed while another process writes it concurrently.
func (r *RedisUserRepository) modify(ctx context.Context, id domain.UserID, change func(user *domain.User) error) error {
	key := string(userKey(id))
	for range maxTxRetries {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			user, err := readUser(ctx, tx, id)
			if err != nil {
				return err
			}
			if err = change(&user); err != nil {
				return err
			}
			bytes, err := encodeUser(user)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, bytes, 0)
				return nil
			})
			return err
		}, key)
		if !stderrors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("user %s: %w", id, redis.TxFailedErr)
}

func readUser(ctx context.Context, client stringGetter, id domain.UserID) (domain.User, error) {
	bytes, err := client.Get(ctx, string(userKey(id))).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, id)
	}
	if err != nil {
		return domain.User{}, err
	}
	var disk diskUser
	if err = codec.Unmarshal(bytes, &disk); err != nil {
		return domain.User{}, err
	}
	return toUser(disk), nil
}

func encodeUser(u domain.User) ([]byte, error) {
	return codec.Marshal(fromUser(u))
}
