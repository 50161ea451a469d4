package domain

import "time"

// RecommendationPayload is the unit handed to the downstream backend.
// Builders return it by value with its own copies of every slice and map.
type RecommendationPayload struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	Provider       string          `json:"provider"`
	PlaylistTitle  string          `json:"playlist_title"`
	MoodSummary    string          `json:"mood_summary"`
	Notes          string          `json:"notes"`
	Reasoning      string          `json:"reasoning"`
	Tracks         []ResolvedTrack `json:"tracks"`
	SeedGenres     []string        `json:"seed_genres"`
	TargetFeatures AudioFeatures   `json:"target_features,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ReplyType tells the client how to render a chat reply.
type ReplyType string

const (
	ReplyConversation   ReplyType = "conversation"
	ReplyRecommendation ReplyType = "recommendation"
)

// ChatReply is what the pipeline returns for one user message.
type ChatReply struct {
	Type      ReplyType
	Message   string
	SessionID string
	Payload   *RecommendationPayload
}
