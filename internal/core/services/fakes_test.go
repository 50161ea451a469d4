package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// --- Mocks ---

// fakeLLM returns scripted responses in order; the last one repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	lastInstr string
	lastTurns []domain.Turn
}

func (f *fakeLLM) Generate(ctx context.Context, instruction string, turns []domain.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastInstr = instruction
	f.lastTurns = append([]domain.Turn(nil), turns...)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// fakeCatalog answers searches from maps keyed by title or query text.
type fakeCatalog struct {
	mu sync.Mutex

	results     map[string][]domain.CatalogTrack
	searchErrs  map[string]error
	features    map[string]domain.AudioFeatures
	featureErrs map[string]error
	// block makes a search wait for its context to end.
	block map[string]bool

	searches      []string
	featureCalls  int
	seedGenres    []string
	seedGenresErr error
}

func queryKey(q domain.CatalogQuery) string {
	if q.Title != "" {
		return q.Title
	}
	return q.Text
}

func (f *fakeCatalog) Search(ctx context.Context, q domain.CatalogQuery) ([]domain.CatalogTrack, error) {
	key := queryKey(q)
	f.mu.Lock()
	f.searches = append(f.searches, key)
	blocked := f.block[key]
	err := f.searchErrs[key]
	res := f.results[key]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, fmt.Errorf("fake catalog: %w", ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *fakeCatalog) AudioFeatures(ctx context.Context, id string) (domain.AudioFeatures, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.featureCalls++
	if err := f.featureErrs[id]; err != nil {
		return nil, err
	}
	return f.features[id], nil
}

func (f *fakeCatalog) SeedGenres(ctx context.Context) ([]string, error) {
	return f.seedGenres, f.seedGenresErr
}

func (f *fakeCatalog) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

// fakeSink records deliveries.
type fakeSink struct {
	mu        sync.Mutex
	name      string
	err       error
	delivered []domain.RecommendationPayload
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Deliver(ctx context.Context, p domain.RecommendationPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, p)
	return s.err
}

func track(id string) domain.CatalogTrack {
	return domain.CatalogTrack{
		ID:      id,
		Name:    "Song " + id,
		Artists: []string{"Artist " + id},
		URL:     "https://open.spotify.com/track/" + id,
	}
}
