package chat

import "time"

// Session is one conversation. The message list lives beside it in storage,
// keyed by session id; Title is denormalized for the sidebar index.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
