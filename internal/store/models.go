package store

import "time"

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one immutable entry in a session. Image holds the encoded
// payload exactly as submitted (data URL or bare base64).
type Message struct {
	Role      Role      `json:"role" bson:"role"`
	Text      string    `json:"text" bson:"text"`
	Image     string    `json:"image,omitempty" bson:"image,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Session is the ordered history for one (user, mode) pair.
type Session struct {
	UserID    string    `json:"userId" bson:"userId"`
	Mode      Mode      `json:"mode" bson:"mode"`
	Messages  []Message `json:"messages" bson:"messages"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

type ConsentRecord struct {
	UserID       string    `json:"userId" bson:"userId"`
	HasConsented bool      `json:"hasConsented" bson:"hasConsented"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
}
