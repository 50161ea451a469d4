package services

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

func TestFeatureNormalizer_Genres(t *testing.T) {
	n := NewFeatureNormalizer([]string{"house", "Deep House", "pop", "hip-hop"})

	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"filters unknown", []string{"pop", "polka", "house"}, []string{"pop", "house"}},
		{"canonicalizes case and spacing", []string{" POP ", "deep house", "hip_hop"}, []string{"pop", "deep-house", "hip-hop"}},
		{"dedupes keeping first", []string{"house", "House", "pop"}, []string{"house", "pop"}},
		{"nil stays empty", nil, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := n.Normalize(tc.input, nil)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("genres mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFeatureNormalizer_DefaultAllowList(t *testing.T) {
	n := NewFeatureNormalizer(nil)
	if diff := cmp.Diff(DefaultSeedGenres, n.AllowedGenres()); diff != "" {
		t.Fatalf("allow-list mismatch (-want +got):\n%s", diff)
	}
}

func TestFeatureNormalizer_Features(t *testing.T) {
	n := NewFeatureNormalizer(nil)
	_, got := n.Normalize(nil, map[string]float64{
		"energy":         1.7,
		"Valence":        -0.2,
		"tempo":          400,
		"loudness":       5,
		"key":            4.6,
		"mode":           0.4,
		"time_signature": 12,
		"popularity":     55.5,
		"danceability":   0.42,
		"sparkle":        0.9,
		"liveness":       math.NaN(),
	})

	want := domain.AudioFeatures{
		"energy":         1,
		"valence":        0,
		"tempo":          250,
		"loudness":       0,
		"key":            5,
		"mode":           0,
		"time_signature": 7,
		"popularity":     56,
		"danceability":   0.42,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("features mismatch (-want +got):\n%s", diff)
	}
}

func TestFeatureNormalizer_AbsentStaysAbsent(t *testing.T) {
	n := NewFeatureNormalizer(nil)
	_, got := n.Normalize(nil, map[string]float64{"energy": 0.5})
	if _, ok := got["tempo"]; ok {
		t.Fatalf("tempo must not be invented")
	}
	if len(got) != 1 {
		t.Fatalf("features: got %v, want only energy", got)
	}
}

func TestFeatureNormalizer_CaseCollisions(t *testing.T) {
	n := NewFeatureNormalizer(nil)

	tests := []struct {
		name  string
		input map[string]float64
		want  domain.AudioFeatures
	}{
		{"exact key wins", map[string]float64{"Energy": 0.9, "energy": 0.1}, domain.AudioFeatures{"energy": 0.1}},
		{"exact key wins over padded", map[string]float64{" energy": 0.9, "energy": 0.2, "ENERGY": 0.7}, domain.AudioFeatures{"energy": 0.2}},
		{"first sorted variant without exact", map[string]float64{"Tempo": 90, "TEMPO": 140}, domain.AudioFeatures{"tempo": 140}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// map order varies between runs
			for i := 0; i < 20; i++ {
				_, got := n.Normalize(nil, tc.input)
				if diff := cmp.Diff(tc.want, got); diff != "" {
					t.Fatalf("features mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestFeatureNormalizer_Idempotent(t *testing.T) {
	n := NewFeatureNormalizer([]string{"pop", "k-pop", "techno"})
	inputs := []map[string]float64{
		{"energy": 3, "tempo": 10, "loudness": -100, "key": -3.2},
		{"valence": 0.5, "mode": 0.51, "popularity": 101},
		{},
	}
	genres := []string{"K Pop", "pop", "jazz", "TECHNO"}

	for i, in := range inputs {
		g1, f1 := n.Normalize(genres, in)
		g2, f2 := n.Normalize(g1, f1)
		if diff := cmp.Diff(g1, g2); diff != "" {
			t.Fatalf("case %d genres not idempotent:\n%s", i, diff)
		}
		if diff := cmp.Diff(f1, f2); diff != "" {
			t.Fatalf("case %d features not idempotent:\n%s", i, diff)
		}
		for name, v := range f1 {
			r := featureRanges[name]
			if v < r.min || v > r.max {
				t.Fatalf("case %d: %s=%v outside [%v,%v]", i, name, v, r.min, r.max)
			}
		}
	}
}
