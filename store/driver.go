package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for storage drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	ReorderConversations(ctx context.Context, uids []string) error
	DeleteConversation(ctx context.Context, uid string) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error)
	TruncateMessagesAfter(ctx context.Context, conversationUID string, messageUID string) (int64, error)

	// UserSetting model related methods.
	UpsertUserSetting(ctx context.Context, setting *UserSetting) error
	GetUserSetting(ctx context.Context, key string) (*UserSetting, error)
	ListUserSettings(ctx context.Context) ([]*UserSetting, error)
}
