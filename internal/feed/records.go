package feed

import (
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type speakerRecord struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company"`
	Bio       string `json:"bio"`
	ImageURL  string `json:"imageUrl"`
}

func parseSpeakers(payload []byte) ([]MutationOp, error) {
	records, err := decodeList[speakerRecord](KindSpeakers, payload)
	if err != nil {
		return nil, err
	}

	inserts := make([]MutationOp, 0, len(records))
	for _, r := range records {
		id := NumericID("speaker", r.ID)
		if id == "" {
			continue
		}
		inserts = append(inserts, Insert(map[string]any{
			"speaker_id": id,
			"first_name": strings.TrimSpace(r.FirstName),
			"last_name":  strings.TrimSpace(r.LastName),
			"company":    r.Company,
			"bio":        r.Bio,
			"image_url":  r.ImageURL,
		}))
	}
	return fullListing(inserts), nil
}

type sessionRecord struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Abstract   string  `json:"abstract"`
	Track      string  `json:"track"`
	Room       string  `json:"room"`
	Speakers   []int64 `json:"speakers"`
	Experience string  `json:"experience"`
	Type       string  `json:"type"`
}

func parseSessions(payload []byte) ([]MutationOp, error) {
	records, err := decodeList[sessionRecord](KindSessions, payload)
	if err != nil {
		return nil, err
	}

	inserts := make([]MutationOp, 0, len(records))
	for _, r := range records {
		id := NumericID("session", r.ID)
		if id == "" {
			continue
		}

		speakerIDs := make([]string, 0, len(r.Speakers))
		for _, s := range r.Speakers {
			if sid := NumericID("speaker", s); sid != "" {
				speakerIDs = append(speakerIDs, sid)
			}
		}

		inserts = append(inserts, Insert(map[string]any{
			"session_id":  id,
			"title":       strings.TrimSpace(r.Title),
			"abstract":    r.Abstract,
			"track_id":    NaturalID("track", r.Track),
			"room_id":     NaturalID("room", r.Room),
			"speaker_ids": strings.Join(speakerIDs, ","),
			"experience":  orDefault(strings.ToLower(r.Experience), "all"),
			"kind":        orDefault(strings.ToLower(r.Type), "talk"),
		}))
	}
	return fullListing(inserts), nil
}

type presentationRecord struct {
	SessionID int64  `json:"sessionId"`
	URL       string `json:"url"`
}

// parsePresentations handles a partial listing: only the named sessions are
// touched and nothing is swept.
func parsePresentations(payload []byte) ([]MutationOp, error) {
	records, err := decodeList[presentationRecord](KindPresentations, payload)
	if err != nil {
		return nil, err
	}

	ops := make([]MutationOp, 0, len(records))
	for _, r := range records {
		id := NumericID("session", r.SessionID)
		if id == "" {
			continue
		}
		ops = append(ops, Update(id, map[string]any{
			"presentation_url": strings.TrimSpace(r.URL),
		}))
	}
	return ops, nil
}

type blockRecord struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"sessionId"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Room      string `json:"room"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func parseSchedule(payload []byte) ([]MutationOp, error) {
	records, err := decodeList[blockRecord](KindSchedule, payload)
	if err != nil {
		return nil, err
	}

	inserts := make([]MutationOp, 0, len(records))
	for _, r := range records {
		id := NumericID("block", r.ID)
		if id == "" {
			continue
		}
		start, err := parseTime(r.Start)
		if err != nil {
			return nil, parseErr(KindSchedule, err)
		}
		end, err := parseTime(r.End)
		if err != nil {
			return nil, parseErr(KindSchedule, err)
		}

		inserts = append(inserts, Insert(map[string]any{
			"block_id":   id,
			"session_id": NumericID("session", r.SessionID),
			"title":      strings.TrimSpace(r.Title),
			"kind":       orDefault(strings.ToLower(r.Type), "session"),
			"room_id":    NaturalID("room", r.Room),
			"start_ms":   start,
			"end_ms":     end,
		}))
	}
	return fullListing(inserts), nil
}

type newsRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Link      string `json:"link"`
	Published string `json:"published"`
}

func parseNews(payload []byte) ([]MutationOp, error) {
	records, err := decodeList[newsRecord](KindNews, payload)
	if err != nil {
		return nil, err
	}

	inserts := make([]MutationOp, 0, len(records))
	for _, r := range records {
		id := NaturalID("news", orDefault(r.ID, r.Title))
		if id == "" {
			continue
		}
		published, err := parseTime(r.Published)
		if err != nil {
			return nil, parseErr(KindNews, err)
		}

		inserts = append(inserts, Insert(map[string]any{
			"news_id":      id,
			"title":        strings.TrimSpace(r.Title),
			"body":         r.Body,
			"link":         r.Link,
			"published_ms": published,
		}))
	}
	return fullListing(inserts), nil
}

var errNotList = errors.New("top-level value is not a list")

// decodeList decodes a tagged-record listing. A top-level null or any other
// non-array value is rejected so it cannot sweep the bucket.
func decodeList[T any](kind Kind, payload []byte) ([]T, error) {
	var records *[]T
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, parseErr(kind, err)
	}
	if records == nil {
		return nil, parseErr(kind, errNotList)
	}
	return *records, nil
}

// parseTime converts an RFC 3339 timestamp to unix millis. Empty means 0.
func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
