package feed

import (
	"encoding/xml"
	"strings"
)

type roomsDoc struct {
	XMLName xml.Name `xml:"rooms"`
	Rooms   []struct {
		Name     string `xml:"name"`
		Floor    string `xml:"floor"`
		Capacity int    `xml:"capacity"`
	} `xml:"room"`
}

func parseRooms(payload []byte) ([]MutationOp, error) {
	var doc roomsDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, parseErr(KindRooms, err)
	}

	inserts := make([]MutationOp, 0, len(doc.Rooms))
	for _, r := range doc.Rooms {
		name := strings.TrimSpace(r.Name)
		id := NaturalID("room", name)
		if id == "" {
			continue
		}
		inserts = append(inserts, Insert(map[string]any{
			"room_id":  id,
			"name":     name,
			"floor":    strings.TrimSpace(r.Floor),
			"capacity": r.Capacity,
		}))
	}
	return fullListing(inserts), nil
}

type tracksDoc struct {
	XMLName xml.Name `xml:"tracks"`
	Tracks  []struct {
		Name     string `xml:"name"`
		Color    string `xml:"color"`
		Abstract string `xml:"abstract"`
	} `xml:"track"`
}

func parseTracks(payload []byte) ([]MutationOp, error) {
	var doc tracksDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, parseErr(KindTracks, err)
	}

	inserts := make([]MutationOp, 0, len(doc.Tracks))
	for _, t := range doc.Tracks {
		name := strings.TrimSpace(t.Name)
		id := NaturalID("track", name)
		if id == "" {
			continue
		}
		inserts = append(inserts, Insert(map[string]any{
			"track_id": id,
			"name":     name,
			"color":    ParseColor(t.Color),
			"abstract": strings.TrimSpace(t.Abstract),
		}))
	}
	return fullListing(inserts), nil
}
