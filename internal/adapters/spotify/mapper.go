package spotify

import (
	"fmt"

	"github.com/ewilliams-labs/moodlist/internal/core/domain"
)

// mapTrackToDomain converts a raw Spotify track to a catalog candidate.
func mapTrackToDomain(st spotifyTrack) domain.CatalogTrack {
	artists := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	link := st.ExternalURLs.Spotify
	if link == "" && st.ID != "" {
		link = fmt.Sprintf("https://open.spotify.com/track/%s", st.ID)
	}
	preview := ""
	if st.PreviewURL != nil {
		preview = *st.PreviewURL
	}

	return domain.CatalogTrack{
		ID:               st.ID,
		Name:             st.Name,
		Artists:          artists,
		URL:              link,
		PreviewURL:       preview,
		AlbumImageURL:    albumImage(st),
		Popularity:       st.Popularity,
		DurationMs:       st.DurationMs,
		AvailableMarkets: st.AvailableMarkets,
		IsPlayable:       st.IsPlayable,
	}
}

// albumImage picks the middle size when Spotify returns several (they arrive largest first).
func albumImage(st spotifyTrack) string {
	images := st.Album.Images
	switch len(images) {
	case 0:
		return ""
	case 1:
		return images[0].URL
	default:
		return images[len(images)/2].URL
	}
}
