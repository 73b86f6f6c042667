package store

// TitleSource indicates how the conversation title was created.
// - "default": the sentinel title a fresh conversation starts with
// - "auto": generated from the conversation content
// - "user": user-provided title (manual rename)
type TitleSource string

const (
	TitleSourceDefault TitleSource = "default"
	TitleSourceAuto    TitleSource = "auto"
	TitleSourceUser    TitleSource = "user"
)

type Conversation struct {
	UID          string
	Title        string
	TitleSource  TitleSource
	CreatedTs    int64
	UpdatedTs    int64
	ID           int64
	DisplayOrder int64 // manual ordering in the sidebar, independent of timestamps
}

// ConversationOrder selects the sort order for ListConversations.
type ConversationOrder string

const (
	// OrderByRecency sorts by updated timestamp, newest first. Default.
	OrderByRecency ConversationOrder = "recency"
	// OrderByDisplay sorts by the manual display order, ascending.
	OrderByDisplay ConversationOrder = "display"
)

type FindConversation struct {
	UID   *string
	Order ConversationOrder
}

type UpdateConversation struct {
	Title        *string
	TitleSource  *TitleSource
	DisplayOrder *int64
	UpdatedTs    *int64
	// IfTitleSource restricts the update to rows whose current title source
	// matches. Used to keep auto-titling from clobbering a manual rename.
	IfTitleSource *TitleSource
	UID           string
}
