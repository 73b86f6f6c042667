package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/sidekick/internal/profile"
)

// Store provides database access to conversations, messages, and user settings.
// It owns identifier allocation and timestamp sequencing; the Driver below it
// only executes storage operations.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// CreateConversation allocates a new conversation with the sentinel title,
// ordered before every existing conversation.
func (s *Store) CreateConversation(ctx context.Context) (*Conversation, error) {
	now := time.Now().UnixMilli()
	return s.driver.CreateConversation(ctx, &Conversation{
		UID:         shortuuid.New(),
		Title:       SentinelTitle,
		TitleSource: TitleSourceDefault,
		CreatedTs:   now,
		UpdatedTs:   now,
	})
}

func (s *Store) GetConversation(ctx context.Context, uid string) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	if find == nil {
		find = &FindConversation{}
	}
	return s.driver.ListConversations(ctx, find)
}

// RenameConversation applies a user-sourced title. Unknown conversations are a
// silent no-op; a manual rename permanently opts the conversation out of
// auto-titling.
func (s *Store) RenameConversation(ctx context.Context, uid string, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	now := time.Now().UnixMilli()
	source := TitleSourceUser
	_, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		UID:         uid,
		Title:       &title,
		TitleSource: &source,
		UpdatedTs:   &now,
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// SetAutoTitle stores a generated title, but only while the conversation still
// carries its default title. The guard runs inside the driver so a concurrent
// user rename cannot be overwritten.
func (s *Store) SetAutoTitle(ctx context.Context, uid string, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	now := time.Now().UnixMilli()
	source := TitleSourceAuto
	guard := TitleSourceDefault
	_, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		UID:           uid,
		Title:         &title,
		TitleSource:   &source,
		UpdatedTs:     &now,
		IfTitleSource: &guard,
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ReorderConversations persists a full manual ordering in one transaction.
func (s *Store) ReorderConversations(ctx context.Context, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	return s.driver.ReorderConversations(ctx, uids)
}

// DeleteConversation removes the conversation and all of its messages as one
// unit. Deleting an unknown conversation is a no-op.
func (s *Store) DeleteConversation(ctx context.Context, uid string) error {
	return s.driver.DeleteConversation(ctx, uid)
}

// AppendMessage persists a new message and bumps the parent conversation's
// updated timestamp. Returns ErrNotFound when the parent conversation has been
// deleted: losing a message silently would be worse than failing the turn.
func (s *Store) AppendMessage(ctx context.Context, conversationUID string, role Role, content string) (*Message, error) {
	now := time.Now().UnixMilli()
	return s.driver.CreateMessage(ctx, &Message{
		UID:             uuid.NewString(),
		ConversationUID: conversationUID,
		Role:            role,
		Content:         content,
		CreatedTs:       now,
	})
}

// ListMessages returns the conversation's messages in chronological order.
// An unknown conversation yields an empty slice, not an error.
func (s *Store) ListMessages(ctx context.Context, conversationUID string) ([]*Message, error) {
	return s.driver.ListMessages(ctx, &FindMessage{ConversationUID: &conversationUID})
}

// UpdateMessageContent replaces a message's content in place. Used only for
// user-initiated edits.
func (s *Store) UpdateMessageContent(ctx context.Context, uid string, content string) (*Message, error) {
	return s.driver.UpdateMessage(ctx, &UpdateMessage{UID: uid, Content: &content})
}

// TruncateAfter deletes every message in the conversation created strictly
// after the given message. The target message itself is always kept.
func (s *Store) TruncateAfter(ctx context.Context, conversationUID string, messageUID string) (int64, error) {
	return s.driver.TruncateMessagesAfter(ctx, conversationUID, messageUID)
}

func (s *Store) UpsertUserSetting(ctx context.Context, setting *UserSetting) error {
	return s.driver.UpsertUserSetting(ctx, setting)
}

func (s *Store) GetUserSetting(ctx context.Context, key string) (*UserSetting, error) {
	return s.driver.GetUserSetting(ctx, key)
}

func (s *Store) ListUserSettings(ctx context.Context) ([]*UserSetting, error) {
	return s.driver.ListUserSettings(ctx)
}
