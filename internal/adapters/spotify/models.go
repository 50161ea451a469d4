package spotify

// spotifyTrack represents the Spotify API response for a track.
type spotifyTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL    string `json:"url"`
			Height int    `json:"height"`
			Width  int    `json:"width"`
		} `json:"images"`
	} `json:"album"`
	DurationMs   int     `json:"duration_ms"`
	Popularity   int     `json:"popularity"`
	PreviewURL   *string `json:"preview_url"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	AvailableMarkets []string `json:"available_markets"`
	IsPlayable       *bool    `json:"is_playable"`
}

type searchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type genreSeedsResponse struct {
	Genres []string `json:"genres"`
}
