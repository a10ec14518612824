package storage

import (
	"slices"
)

// Bucket describes a mirrored feed table.
type Bucket struct {
	Name    string
	Key     string
	Columns []string // writable by feed mutations, key excluded
	OrderBy string
}

// Bucket names.
const (
	BucketRooms    = "rooms"
	BucketTracks   = "tracks"
	BucketSpeakers = "speakers"
	BucketSessions = "sessions"
	BucketBlocks   = "blocks"
	BucketNews     = "news"
	BucketTweets   = "tweets"
)

// Star state columns on sessions are deliberately not listed; only the
// session repository writes them.
var buckets = map[string]Bucket{
	BucketRooms: {
		Name:    BucketRooms,
		Key:     "room_id",
		Columns: []string{"name", "floor", "capacity"},
		OrderBy: "name",
	},
	BucketTracks: {
		Name:    BucketTracks,
		Key:     "track_id",
		Columns: []string{"name", "color", "abstract"},
		OrderBy: "name",
	},
	BucketSpeakers: {
		Name:    BucketSpeakers,
		Key:     "speaker_id",
		Columns: []string{"first_name", "last_name", "company", "bio", "image_url"},
		OrderBy: "last_name, first_name",
	},
	BucketSessions: {
		Name:    BucketSessions,
		Key:     "session_id",
		Columns: []string{"title", "abstract", "track_id", "room_id", "speaker_ids", "experience", "kind", "presentation_url"},
		OrderBy: "title",
	},
	BucketBlocks: {
		Name:    BucketBlocks,
		Key:     "block_id",
		Columns: []string{"session_id", "title", "kind", "room_id", "start_ms", "end_ms"},
		OrderBy: "start_ms, room_id",
	},
	BucketNews: {
		Name:    BucketNews,
		Key:     "news_id",
		Columns: []string{"title", "body", "link", "published_ms"},
		OrderBy: "published_ms DESC",
	},
	BucketTweets: {
		Name:    BucketTweets,
		Key:     "tweet_id",
		Columns: []string{"author", "body", "link", "published_ms"},
		OrderBy: "published_ms DESC",
	},
}

// LookupBucket returns the bucket with the given name.
func LookupBucket(name string) (Bucket, bool) {
	b, ok := buckets[name]
	return b, ok
}

// BucketNames returns all bucket names, sorted.
func BucketNames() []string {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (b Bucket) hasColumn(col string) bool {
	return col == b.Key || slices.Contains(b.Columns, col)
}
