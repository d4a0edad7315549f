package store

// ChatSession is a titled conversation between one user and the assistant.
type ChatSession struct {
	ID        int32
	UID       string
	CreatorID int32
	Title     string
	Active    bool
	CreatedTs int64
	UpdatedTs int64
}

type FindChatSession struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	Active    *bool
	Limit     *int
}

type UpdateChatSession struct {
	ID        int32
	Title     *string
	Active    *bool
	UpdatedTs *int64
}

// DeactivateChatSessions selects active sessions idle since before UpdatedBefore.
type DeactivateChatSessions struct {
	UpdatedBefore int64
}
