package services

import (
	"math"
	"sort"
	"strings"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// DefaultSeedGenres is the allow-list used when none is configured or fetched.
var DefaultSeedGenres = []string{
	"house", "deep-house", "dance", "edm", "electro", "disco", "club",
	"progressive-house", "techno", "trance", "pop", "k-pop", "hip-hop",
	"r-n-b", "funk", "latin",
}

type featureRange struct {
	min, max float64
	discrete bool
}

// featureRanges are the bounds the catalog accepts for target features.
var featureRanges = map[string]featureRange{
	"acousticness":     {0, 1, false},
	"danceability":     {0, 1, false},
	"energy":           {0, 1, false},
	"instrumentalness": {0, 1, false},
	"liveness":         {0, 1, false},
	"speechiness":      {0, 1, false},
	"valence":          {0, 1, false},
	"popularity":       {0, 100, true},
	"tempo":            {30, 250, false},
	"loudness":         {-60, 0, false},
	"key":              {0, 11, true},
	"mode":             {0, 1, true},
	"time_signature":   {3, 7, true},
}

// KnownFeature reports whether name is a feature the catalog understands.
func KnownFeature(name string) bool {
	_, ok := featureRanges[name]
	return ok
}

// FeatureNormalizer filters genre seeds against an allow-list and clamps
// audio-feature targets into the catalog's accepted ranges. It is safe for
// concurrent use; the allow-list is read-only after construction.
type FeatureNormalizer struct {
	allowed map[string]struct{}
	order   []string
}

// NewFeatureNormalizer builds a normalizer. An empty allow-list falls back to DefaultSeedGenres.
func NewFeatureNormalizer(allowed []string) *FeatureNormalizer {
	list := CanonicalGenres(allowed)
	if len(list) == 0 {
		list = CanonicalGenres(DefaultSeedGenres)
	}
	set := make(map[string]struct{}, len(list))
	for _, g := range list {
		set[g] = struct{}{}
	}
	return &FeatureNormalizer{allowed: set, order: list}
}

// AllowedGenres returns a copy of the allow-list in configured order.
func (n *FeatureNormalizer) AllowedGenres() []string {
	return append([]string(nil), n.order...)
}

// Normalize returns the allow-listed subset of genres (canonical form, first
// occurrence order) and the clamped features. Unknown genres and features are
// dropped; absent features stay absent. Normalizing the output again is a no-op.
func (n *FeatureNormalizer) Normalize(genres []string, features map[string]float64) ([]string, domain.AudioFeatures) {
	outGenres := make([]string, 0, len(genres))
	for _, g := range CanonicalGenres(genres) {
		if _, ok := n.allowed[g]; ok {
			outGenres = append(outGenres, g)
		}
	}

	// keys folding to the same feature: an exact key wins, otherwise the
	// first in sorted order
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	outFeatures := make(domain.AudioFeatures, len(features))
	exact := make(map[string]bool, len(features))
	for _, name := range names {
		v := features[name]
		key := strings.ToLower(strings.TrimSpace(name))
		r, ok := featureRanges[key]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, seen := outFeatures[key]; seen && (exact[key] || name != key) {
			continue
		}
		outFeatures[key] = clampFeature(v, r)
		exact[key] = name == key
	}
	return outGenres, outFeatures
}

func clampFeature(v float64, r featureRange) float64 {
	if r.discrete {
		v = math.Round(v)
	}
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}

// CanonicalGenres lowercases, trims and hyphenates genre names, dropping
// empties and duplicates while keeping first-seen order.
func CanonicalGenres(genres []string) []string {
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		c := strings.ToLower(strings.TrimSpace(g))
		c = strings.Join(strings.FieldsFunc(c, func(r rune) bool {
			return r == ' ' || r == '_' || r == '\t'
		}), "-")
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// featureNames lists known features in a stable order, used by the system prompt.
func featureNames() []string {
	names := make([]string, 0, len(featureRanges))
	for k := range featureRanges {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
