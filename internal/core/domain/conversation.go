package domain

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session. Turns are never edited after they are appended.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SessionState is the position of a session in the gathering/analysis cycle.
type SessionState string

const (
	StateGathering        SessionState = "gathering"
	StateAnalysisComplete SessionState = "analysis_complete"
)

// Session is a read-only snapshot of one conversation.
type Session struct {
	ID           string
	Turns        []Turn
	State        SessionState
	LastAnalysis *AnalysisPlan
}
