package chat

import "time"

// Room is either a private 1:1 conversation or a named group chat.
// Invariants: a private room has exactly two members and no admin; a
// group room has an admin who is always a member.
type Room struct {
	ID            string    `json:"id"`
	RoomName      string    `json:"room_name"`
	IsPrivate     bool      `json:"is_private"`
	GroupchatName string    `json:"groupchat_name,omitempty"`
	AdminID       string    `json:"admin_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Member struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message is append-only; rows are immutable once created.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"` // Denormalized for rendering (fetched via JOIN)
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoomSummary is a row of the home-page conversation list.
type RoomSummary struct {
	Room
	DisplayName   string     `json:"display_name"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// RoomView is everything the room page needs in one shot. Messages are
// ordered oldest first, ready for display.
type RoomView struct {
	Room      *Room
	Members   []Member
	OtherUser *Member // private rooms only, display purposes
	Messages  []Message
	IsAdmin   bool
}

type NewGroupForm struct {
	GroupchatName string `validate:"required,min=3,max=64"`
}

type EditRoomForm struct {
	GroupchatName string `validate:"required,min=3,max=64"`
	RemoveMembers []string
}

type MessageForm struct {
	Body string `validate:"required,max=2000"`
}
