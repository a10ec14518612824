// Package feedsync runs feed sync passes: local seeding, fingerprint-gated
// change detection, remote fetch and batch reconciliation.
package feedsync

import (
	"github.com/conference-schedule/backend/internal/config"
	"github.com/conference-schedule/backend/internal/feed"
	"github.com/conference-schedule/backend/internal/storage"
)

// Group is a set of resources synced together as one pass.
type Group string

// Sync groups.
const (
	GroupSchedule Group = "schedule"
	GroupNews     Group = "news"
	GroupTweets   Group = "tweets"
)

// Resource is a remote feed and where its parsed contents land.
type Resource struct {
	Name   string
	URL    string
	Kind   feed.Kind
	Bucket string
	// Full resources list every entry and are reconciled by mark and sweep.
	// Partial ones only touch the ids they name.
	Full     bool
	Group    Group
	SeedFile string
}

type resourceDef struct {
	kind   feed.Kind
	bucket string
	full   bool
	group  Group
	file   string
}

// Order matters: sessions must exist before presentations can update them.
var resourceDefs = []resourceDef{
	{feed.KindRooms, storage.BucketRooms, true, GroupSchedule, "rooms.xml"},
	{feed.KindTracks, storage.BucketTracks, true, GroupSchedule, "tracks.xml"},
	{feed.KindSpeakers, storage.BucketSpeakers, true, GroupSchedule, "speakers.json"},
	{feed.KindSessions, storage.BucketSessions, true, GroupSchedule, "sessions.json"},
	{feed.KindPresentations, storage.BucketSessions, false, GroupSchedule, "presentations.json"},
	{feed.KindSchedule, storage.BucketBlocks, true, GroupSchedule, "schedule.json"},
	{feed.KindNews, storage.BucketNews, true, GroupNews, "news.json"},
	{feed.KindTweets, storage.BucketTweets, true, GroupTweets, "tweets.atom"},
}

// DefaultResources builds the fixed resource set from the feed configuration.
func DefaultResources(cfg *config.FeedsConfig) []Resource {
	resources := make([]Resource, 0, len(resourceDefs))
	for _, d := range resourceDefs {
		name := string(d.kind)
		resources = append(resources, Resource{
			Name:     name,
			URL:      cfg.FeedURL(name, d.file),
			Kind:     d.kind,
			Bucket:   d.bucket,
			Full:     d.full,
			Group:    d.group,
			SeedFile: d.file,
		})
	}
	return resources
}

// InGroup returns the resources of g, in order.
func InGroup(resources []Resource, g Group) []Resource {
	var out []Resource
	for _, r := range resources {
		if r.Group == g {
			out = append(out, r)
		}
	}
	return out
}
