package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

const readyPlan = `{
  "ready": true,
  "playlist_title": "Rainy Focus",
  "mood_summary": "calm and introspective",
  "notes": "keep vocals low",
  "reasoning": "user is studying",
  "track_requests": [
    {"title": "Song A", "artist": "Artist A", "rationale": "soft piano", "search_hint": null},
    {"title": "Song B", "artist": null, "rationale": "ambient"},
    {"title": "Song C", "artist": "Artist C", "rationale": "warm"}
  ],
  "fallback_queries": ["lofi study", {"query": "rain ambient", "reason": "texture"}],
  "genres": ["Chill", "pop"],
  "target_features": {"energy": 0.3, "tempo": 80}
}`

func userTurns(texts ...string) []domain.Turn {
	turns := make([]domain.Turn, len(texts))
	for i, txt := range texts {
		turns[i] = domain.Turn{Role: domain.RoleUser, Text: txt}
	}
	return turns
}

func TestConversationAnalyzer_Classification(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantKind  domain.AnalysisKind
		wantReply string
	}{
		{
			name:      "not ready json reply",
			response:  `{"ready": false, "reply": "What are you up to right now?", "track_requests": [], "fallback_queries": []}`,
			wantKind:  domain.AnalysisNotReady,
			wantReply: "What are you up to right now?",
		},
		{
			name:      "status field and followup question",
			response:  `{"status": "need_more_info", "followup_question": "Upbeat or mellow?"}`,
			wantKind:  domain.AnalysisNotReady,
			wantReply: "Upbeat or mellow?",
		},
		{
			name:      "plain prose is not ready",
			response:  "Sounds like a long day. Want something soothing?",
			wantKind:  domain.AnalysisNotReady,
			wantReply: "Sounds like a long day. Want something soothing?",
		},
		{
			name:      "empty response uses default question",
			response:  "   ",
			wantKind:  domain.AnalysisNotReady,
			wantReply: defaultFollowup,
		},
		{
			name:      "ready with missing key",
			response:  `{"ready": true, "mood_summary": "x", "notes": "", "reasoning": "", "track_requests": []}`,
			wantKind:  domain.AnalysisParseFailure,
			wantReply: defaultFollowup,
		},
		{
			name:      "ready with wrong type",
			response:  `{"ready": true, "mood_summary": "x", "notes": "", "reasoning": "", "track_requests": "Song A", "fallback_queries": []}`,
			wantKind:  domain.AnalysisParseFailure,
			wantReply: defaultFollowup,
		},
		{
			name:     "ready with empty title keeps the plan",
			response: `{"ready": true, "mood_summary": "x", "notes": "", "reasoning": "", "track_requests": [{"title": " "}], "fallback_queries": []}`,
			wantKind: domain.AnalysisReady,
		},
		{
			name:      "json without ready flag",
			response:  `{"mood_summary": "x"}`,
			wantKind:  domain.AnalysisParseFailure,
			wantReply: defaultFollowup,
		},
		{
			name:     "ready plan in fence with prose",
			response: "Here you go!\n```json\n" + readyPlan + "\n```",
			wantKind: domain.AnalysisReady,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			llm := &fakeLLM{responses: []string{tc.response}}
			a := NewConversationAnalyzer(llm, AnalyzerConfig{Limit: 5}, nil, nil)

			got, err := a.Analyze(context.Background(), userTurns("hi", "rough day"))
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, got.Kind)
			if tc.wantKind != domain.AnalysisReady {
				assert.Nil(t, got.Plan)
				assert.Equal(t, tc.wantReply, got.Reply)
			}
		})
	}
}

func TestConversationAnalyzer_ReadyPlan(t *testing.T) {
	llm := &fakeLLM{responses: []string{readyPlan}}
	a := NewConversationAnalyzer(llm, AnalyzerConfig{Limit: 2, AllowedGenres: []string{"pop"}}, nil, nil)

	turns := userTurns("studying tonight", "raining outside")
	got, err := a.Analyze(context.Background(), turns)
	require.NoError(t, err)
	require.True(t, got.Ready())

	plan := got.Plan
	assert.Equal(t, "Rainy Focus", plan.PlaylistTitle)
	assert.Equal(t, "calm and introspective", plan.MoodSummary)
	assert.Equal(t, "keep vocals low", plan.Notes)
	require.Len(t, plan.TrackRequests, 2, "track requests are capped at the limit")
	assert.Equal(t, "Song B", plan.TrackRequests[1].Title)
	assert.Equal(t, "", plan.TrackRequests[1].Artist)
	assert.Equal(t, []domain.FallbackQuery{{Query: "lofi study"}, {Query: "rain ambient", Reason: "texture"}}, plan.FallbackQueries)
	assert.Equal(t, map[string]float64{"energy": 0.3, "tempo": 80}, plan.TargetFeatures)

	assert.Equal(t, turns, llm.lastTurns)
	assert.Contains(t, llm.lastInstr, "at most 2 track_requests")
	assert.Contains(t, llm.lastInstr, "Pick genres only from: pop.")
}

func TestConversationAnalyzer_SkipsUntitledRequests(t *testing.T) {
	tests := []struct {
		name       string
		requests   string
		limit      int
		wantTitles []string
	}{
		{
			name:       "null title in the middle",
			requests:   `[{"title": "Holocene", "artist": "Bon Iver"}, {"title": null, "artist": "Nobody"}, {"title": "Re: Stacks"}]`,
			limit:      5,
			wantTitles: []string{"Holocene", "Re: Stacks"},
		},
		{
			name:       "blank titles do not count toward the limit",
			requests:   `[{"title": "  "}, {"title": "One"}, {"artist": "no title"}, {"title": "Two"}, {"title": "Three"}]`,
			limit:      2,
			wantTitles: []string{"One", "Two"},
		},
		{
			name:       "every request untitled",
			requests:   `[{"title": ""}, {"title": null}]`,
			limit:      5,
			wantTitles: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"ready": true, "mood_summary": "wistful", "notes": "", "reasoning": "r",
			  "track_requests": ` + tt.requests + `, "fallback_queries": ["indie folk"]}`
			a := NewConversationAnalyzer(&fakeLLM{responses: []string{raw}}, AnalyzerConfig{Limit: tt.limit}, nil, nil)

			got, err := a.Analyze(context.Background(), userTurns("snowy evening"))
			require.NoError(t, err)
			require.Equal(t, domain.AnalysisReady, got.Kind)

			titles := make([]string, 0, len(got.Plan.TrackRequests))
			for _, tr := range got.Plan.TrackRequests {
				titles = append(titles, tr.Title)
			}
			assert.Equal(t, tt.wantTitles, titles)
			assert.Equal(t, []domain.FallbackQuery{{Query: "indie folk"}}, got.Plan.FallbackQueries)
		})
	}
}

func TestConversationAnalyzer_DefaultsAndAliases(t *testing.T) {
	raw := `{"status": "ready", "mood_summary": "hype", "notes_for_backend": "gym", "reasoning": "r",
	  "track_requests": [{"title": "Lift"},], "fallback_queries": [],}`
	a := NewConversationAnalyzer(&fakeLLM{responses: []string{raw}}, AnalyzerConfig{}, nil, nil)

	got, err := a.Analyze(context.Background(), userTurns("gym time"))
	require.NoError(t, err)
	require.True(t, got.Ready())
	assert.Equal(t, defaultPlaylistTitle, got.Plan.PlaylistTitle)
	assert.Equal(t, "gym", got.Plan.Notes)
	assert.Len(t, got.Plan.TrackRequests, 1)
}

func TestConversationAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantKind      domain.ErrorKind
		wantRetryable bool
	}{
		{
			name:          "quota passes through",
			err:           &domain.UpstreamError{Provider: "gemini", Kind: domain.KindQuota, RetryAfter: 30 * time.Second, Message: "Quota exceeded"},
			wantKind:      domain.KindQuota,
			wantRetryable: true,
		},
		{
			name:          "deadline is a timeout",
			err:           context.DeadlineExceeded,
			wantKind:      domain.KindTimeout,
			wantRetryable: false,
		},
		{
			name:          "transient model error becomes fatal",
			err:           &domain.UpstreamError{Provider: "gemini", Kind: domain.KindTransient, Status: 503},
			wantKind:      domain.KindFatal,
			wantRetryable: false,
		},
		{
			name:          "plain error is fatal",
			err:           errors.New("socket closed"),
			wantKind:      domain.KindFatal,
			wantRetryable: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewConversationAnalyzer(&fakeLLM{err: tc.err}, AnalyzerConfig{}, nil, nil)
			_, err := a.Analyze(context.Background(), userTurns("hello"))
			require.Error(t, err)

			var up *domain.UpstreamError
			require.True(t, errors.As(err, &up))
			assert.Equal(t, tc.wantKind, up.Kind)
			assert.Equal(t, tc.wantRetryable, up.Retryable())
		})
	}
}

func TestConversationAnalyzer_QuotaKeepsHint(t *testing.T) {
	quota := &domain.UpstreamError{Provider: "gemini", Kind: domain.KindQuota, RetryAfter: 12 * time.Second, Message: "Resource has been exhausted"}
	a := NewConversationAnalyzer(&fakeLLM{err: quota}, AnalyzerConfig{}, nil, nil)

	_, err := a.Analyze(context.Background(), userTurns("hello"))
	assert.Equal(t, 12*time.Second, domain.RetryAfterOf(err))
	assert.True(t, strings.HasPrefix(domain.UserMessage(err), "Resource has been exhausted"))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		key    string
	}{
		{"raw", `{"ready": true}`, true, "ready"},
		{"fenced", "text\n```json\n{\"a\": {\"b\": 1}}\n```\nmore", true, "a"},
		{"embedded", `Sure! {"x": "has } brace"} thanks`, true, "x"},
		{"trailing commas", `{"list": [1, 2,], "k": 1,}`, true, "list"},
		{"no object", "just words", false, ""},
		{"array only", "[1,2]", false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obj, _, ok := extractJSONObject(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tc.wantOK)
			}
			if ok {
				if _, found := obj[tc.key]; !found {
					t.Fatalf("key %q missing from %v", tc.key, obj)
				}
			}
		})
	}
}

func TestVisibleText(t *testing.T) {
	in := "Here is the plan:\n```json\n{\"ready\": true}\n```\nEnjoy!"
	if got := visibleText(in); got != "Here is the plan:\n\nEnjoy!" {
		t.Fatalf("visibleText: got %q", got)
	}
	if got := visibleText(`{"ready": false}`); got != "" {
		t.Fatalf("visibleText of bare json: got %q, want empty", got)
	}
}
