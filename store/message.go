package store

type Message struct {
	UID             string
	ConversationUID string
	Role            Role
	Content         string
	CreatedTs       int64
	ID              int64
}

type FindMessage struct {
	UID             *string
	ConversationUID *string
}

type UpdateMessage struct {
	Content *string
	UID     string
}
