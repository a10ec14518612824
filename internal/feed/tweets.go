package feed

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

// parseTweets reads the tweet search feed, published as Atom (or RSS).
func parseTweets(payload []byte) ([]MutationOp, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, parseErr(KindTweets, err)
	}

	inserts := make([]MutationOp, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		id := NaturalID("tweet", orDefault(item.GUID, item.Link))
		if id == "" {
			continue
		}

		var author string
		if item.Author != nil {
			author = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			author = item.Authors[0].Name
		}

		var published int64
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UnixMilli()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UnixMilli()
		}

		inserts = append(inserts, Insert(map[string]any{
			"tweet_id":     id,
			"author":       strings.TrimSpace(author),
			"body":         strings.TrimSpace(orDefault(item.Content, item.Title)),
			"link":         item.Link,
			"published_ms": published,
		}))
	}
	return fullListing(inserts), nil
}
