package domain

// AudioFeatures maps a provider feature name (energy, valence, tempo, ...) to its value.
// A missing key means "no constraint"; an empty map means features were unavailable.
type AudioFeatures map[string]float64

// Clone returns an independent copy. A nil receiver yields an empty, non-nil map.
func (f AudioFeatures) Clone() AudioFeatures {
	out := make(AudioFeatures, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// CatalogQuery describes one catalog search. Title/Artist drive a structured
// track search; Text is used verbatim when Title is empty.
type CatalogQuery struct {
	Title  string
	Artist string
	Hint   string
	Text   string
	Limit  int
}

// CatalogTrack is a ranked search candidate as returned by the catalog provider.
type CatalogTrack struct {
	ID               string
	Name             string
	Artists          []string
	URL              string
	PreviewURL       string
	AlbumImageURL    string
	Popularity       int
	DurationMs       int
	AvailableMarkets []string
	IsPlayable       *bool
}

// PlayableIn reports whether the candidate can be streamed in market.
// Candidates without restriction data are assumed playable.
func (t CatalogTrack) PlayableIn(market string) bool {
	if t.ID == "" || t.URL == "" {
		return false
	}
	if t.IsPlayable != nil && !*t.IsPlayable {
		return false
	}
	if len(t.AvailableMarkets) == 0 || market == "" {
		return true
	}
	for _, m := range t.AvailableMarkets {
		if m == market {
			return true
		}
	}
	return false
}

// TrackSource records which pool a resolved track came from.
type TrackSource string

const (
	SourceRequested TrackSource = "requested"
	SourceFallback  TrackSource = "fallback"
)

// ResolvedTrack is a playable catalog entry enriched with audio features.
type ResolvedTrack struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Artists       []string      `json:"artists"`
	URL           string        `json:"url"`
	PreviewURL    string        `json:"preview_url,omitempty"`
	AlbumImageURL string        `json:"album_image,omitempty"`
	Popularity    int           `json:"popularity"`
	DurationMs    int           `json:"duration_ms"`
	AudioFeatures AudioFeatures `json:"audio_features"`
	Source        TrackSource   `json:"source"`
	Rationale     string        `json:"rationale"`
	SeedGenre     string        `json:"seed_genre,omitempty"`
}
