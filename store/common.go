package store

import "github.com/pkg/errors"

// ErrNotFound is returned when an operation targets a row that does not exist
// and the caller must know about it (notably AppendMessage on a deleted
// conversation). Best-effort operations swallow it instead.
var ErrNotFound = errors.New("not found")

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// SentinelTitle is the placeholder title of a fresh conversation. Auto-titling
// only fires while the title still equals this value.
const SentinelTitle = "Untitled"
