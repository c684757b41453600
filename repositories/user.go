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

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// UserRepository stores users under "user:{id}" with an "email:{email}" index to the id.
type UserRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

type diskUser struct {
	ID           string    `cbor:"id"`
	Username     string    `cbor:"username"`
	Email        string    `cbor:"email"`
	PasswordHash string    `cbor:"password_hash"`
	DeviceTokens []string  `cbor:"device_tokens,omitempty"`
	CreatedAt    time.Time `cbor:"created_at"`
}

func userKey(id domain.UserID) []byte {
	return []byte("user:" + id.String())
}

func emailKey(email string) []byte {
	return []byte("email:" + strings.ToLower(email))
}

// CreateUser persists a new user and returns it with its generated id.
func (r *UserRepository) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	u.ID = domain.UserID(uuid.NewString())
	u.CreatedAt = r.now().UTC()

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(u.Email)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(emailKey(u.Email), []byte(u.ID)); err != nil {
			return err
		}
		return putUser(txn, u)
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *UserRepository) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	var user domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	var user domain.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", errors.ErrUserNotFound, email)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, domain.UserID(id))
		return err
	})
	return user, err
}

// UpdateUser rewrites username and email, moving the email index when it changes.
func (r *UserRepository) UpdateUser(_ context.Context, u domain.User) error {
	return r.db.Update(func(txn *badger.Txn) error {
		previous, err := getUser(txn, u.ID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(previous.Email, u.Email) {
			if _, err = txn.Get(emailKey(u.Email)); err == nil {
				return errors.ErrUserAlreadyExists
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err = txn.Delete(emailKey(previous.Email)); err != nil {
				return err
			}
			if err = txn.Set(emailKey(u.Email), []byte(u.ID)); err != nil {
				return err
			}
		}
		previous.Username = u.Username
		previous.Email = u.Email
		return putUser(txn, previous)
	})
}

// AddDeviceToken registers a push token, a known token is not added twice.
func (r *UserRepository) AddDeviceToken(_ context.Context, id domain.UserID, token string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		if lo.Contains(user.DeviceTokens, token) {
			return nil
		}
		user.DeviceTokens = append(user.DeviceTokens, token)
		return putUser(txn, user)
	})
}

func getUser(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, id)
	}
	if err != nil {
		return domain.User{}, err
	}
	var disk diskUser
	if err = item.Value(func(value []byte) error {
		return codec.Unmarshal(value, &disk)
	}); err != nil {
		return domain.User{}, err
	}
	return toUser(disk), nil
}

func putUser(txn *badger.Txn, u domain.User) error {
	bytes, err := codec.Marshal(fromUser(u))
	if err != nil {
		return err
	}
	return txn.Set(userKey(u.ID), bytes)
}

func fromUser(u domain.User) diskUser {
	return diskUser{
		ID:           u.ID.String(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		DeviceTokens: u.DeviceTokens,
		CreatedAt:    u.CreatedAt,
	}
}

func toUser(disk diskUser) domain.User {
	return domain.User{
		ID:           domain.UserID(disk.ID),
		Username:     disk.Username,
		Email:        disk.Email,
		PasswordHash: disk.PasswordHash,
		DeviceTokens: disk.DeviceTokens,
		CreatedAt:    disk.CreatedAt,
	}
}
