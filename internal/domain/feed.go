package domain

import "time"

// Feed mirrors one row of the external entry store's feed table, read by
// the stale checker and the refresh scheduler. Titles are the store's
// uniqueness key.
type Feed struct {
	ID            string
	Title         string
	SourceURL     string
	MediaType     *string
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsStale reports whether the feed was never fetched or was last fetched
// before the cutoff.
func (f *Feed) IsStale(cutoff time.Time) bool {
	if f.LastFetchedAt == nil {
		return true
	}
	return f.LastFetchedAt.Before(cutoff)
}
