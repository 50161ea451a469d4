package domain

import (
	"strings"

	json "github.com/goccy/go-json"
)

// TrackRequest is a specific song the model wants in the playlist.
type TrackRequest struct {
	Title      string `json:"title" validate:"required"`
	Artist     string `json:"artist,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
	SearchHint string `json:"search_hint,omitempty"`
}

// FallbackQuery is a free-text catalog search used to fill remaining slots.
// The model may emit it either as a bare string or as {"query", "reason"}.
type FallbackQuery struct {
	Query  string `json:"query" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

func (q *FallbackQuery) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		q.Query = strings.TrimSpace(text)
		q.Reason = ""
		return nil
	}

	var obj struct {
		Query  string `json:"query"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	q.Query = strings.TrimSpace(obj.Query)
	q.Reason = strings.TrimSpace(obj.Reason)
	return nil
}

// AnalysisPlan is the structured intent extracted from a conversation.
type AnalysisPlan struct {
	PlaylistTitle   string             `json:"playlist_title"`
	MoodSummary     string             `json:"mood_summary"`
	Notes           string             `json:"notes"`
	Reasoning       string             `json:"reasoning"`
	Reply           string             `json:"reply,omitempty"`
	TrackRequests   []TrackRequest     `json:"track_requests"`
	FallbackQueries []FallbackQuery    `json:"fallback_queries"`
	Genres          []string           `json:"genres,omitempty"`
	TargetFeatures  map[string]float64 `json:"target_features,omitempty"`
}

// AnalysisKind tags the variant held by an Analysis.
type AnalysisKind int

const (
	// AnalysisNotReady means the model wants to keep talking.
	AnalysisNotReady AnalysisKind = iota
	// AnalysisReady means Plan is populated and validated.
	AnalysisReady
	// AnalysisParseFailure means the model claimed readiness but the payload
	// did not validate. Callers treat it exactly like AnalysisNotReady.
	AnalysisParseFailure
)

func (k AnalysisKind) String() string {
	switch k {
	case AnalysisReady:
		return "ready"
	case AnalysisParseFailure:
		return "parse_failure"
	default:
		return "not_ready"
	}
}

// Analysis is the outcome of one analyzer call. Plan is non-nil only for AnalysisReady;
// Reply carries the text to surface otherwise.
type Analysis struct {
	Kind  AnalysisKind
	Plan  *AnalysisPlan
	Reply string
	Raw   string
}

// Ready reports whether the analysis produced a usable plan.
func (a Analysis) Ready() bool {
	return a.Kind == AnalysisReady && a.Plan != nil
}
