package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ConversationRepository stores conversations under "conv:{id}".
// Membership is indexed by "member:{user_id}:{conversation_id}" with an empty value.
type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log, now: time.Now}
}

type diskConversation struct {
	ID           string    `cbor:"id"`
	Participants []string  `cbor:"participants"`
	IsGroup      bool      `cbor:"is_group"`
	GroupName    string    `cbor:"group_name,omitempty"`
	CreatedAt    time.Time `cbor:"created_at"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte("conv:" + id.String())
}

func memberKey(userID domain.UserID, id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", userID, id))
}

// FindConversation always reads from storage, nothing is cached.
func (r *ConversationRepository) FindConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	return conversation, err
}

func (r *ConversationRepository) CreateConversation(_ context.Context, c domain.Conversation) (domain.Conversation, error) {
	if c.ID == "" {
		c.ID = domain.ConversationID(uuid.NewString())
	}
	c.Participants = lo.Uniq(c.Participants)
	c.CreatedAt = r.now().UTC()

	err := r.db.Update(func(txn *badger.Txn) error {
		return putConversation(txn, c, nil)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	r.log.Debug("Conversation created", "conversation_id", c.ID, "participants", len(c.Participants))
	return c, nil
}

// UpdateConversation replaces the stored conversation, membership index included.
func (r *ConversationRepository) UpdateConversation(_ context.Context, c domain.Conversation) error {
	c.Participants = lo.Uniq(c.Participants)
	return r.db.Update(func(txn *badger.Txn) error {
		previous, err := getConversation(txn, c.ID)
		if err != nil {
			return err
		}
		c.CreatedAt = previous.CreatedAt
		return putConversation(txn, c, previous.Participants)
	})
}

func (r *ConversationRepository) ListForUser(_ context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("member:%s:", userID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.ConversationID
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.ConversationID(strings.TrimPrefix(string(it.Item().Key()), string(prefix))))
		}
		for _, id := range ids {
			conversation, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	return conversations, err
}

func getConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrConversationNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var disk diskConversation
	if err = item.Value(func(value []byte) error {
		return codec.Unmarshal(value, &disk)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk), nil
}

func putConversation(txn *badger.Txn, c domain.Conversation, previous []domain.UserID) error {
	bytes, err := codec.Marshal(fromConversation(c))
	if err != nil {
		return err
	}
	if err = txn.Set(conversationKey(c.ID), bytes); err != nil {
		return err
	}
	removed, _ := lo.Difference(previous, c.Participants)
	for _, userID := range removed {
		if err = txn.Delete(memberKey(userID, c.ID)); err != nil {
			return err
		}
	}
	for _, userID := range c.Participants {
		if err = txn.Set(memberKey(userID, c.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func fromConversation(c domain.Conversation) diskConversation {
	return diskConversation{
		ID:           c.ID.String(),
		Participants: lo.Map(c.Participants, func(u domain.UserID, _ int) string { return u.String() }),
		IsGroup:      c.IsGroup,
		GroupName:    c.GroupName,
		CreatedAt:    c.CreatedAt,
	}
}

func toConversation(disk diskConversation) domain.Conversation {
	return domain.Conversation{
		ID:           domain.ConversationID(disk.ID),
		Participants: lo.Map(disk.Participants, func(u string, _ int) domain.UserID { return domain.UserID(u) }),
		IsGroup:      disk.IsGroup,
		GroupName:    disk.GroupName,
		CreatedAt:    disk.CreatedAt,
	}
}
