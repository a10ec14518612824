package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// StarSyncRequest carries the local star intent. The server merges it with
// its own state rather than applying it as commands.
type StarSyncRequest struct {
	DeviceID string   `json:"deviceId"`
	ToStar   []string `json:"toStar"`
	ToUnstar []string `json:"toUnstar"`
}

// StarSyncResponse is the complete authoritative starred set.
type StarSyncResponse struct {
	Starred []string `json:"starred"`
}

// SyncStars sends the intent and returns the authoritative starred set.
func (c *Client) SyncStars(ctx context.Context, req StarSyncRequest) (*StarSyncResponse, error) {
	if req.ToStar == nil {
		req.ToStar = []string{}
	}
	if req.ToUnstar == nil {
		req.ToUnstar = []string{}
	}

	resp, err := c.do(ctx, http.MethodPost, c.opts.StarSyncURL, req)
	if err != nil {
		return nil, err
	}

	var out StarSyncResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, &TransportError{
			URL: c.opts.StarSyncURL,
			Err: fmt.Errorf("decoding star sync response: %w", err),
		}
	}
	if out.Starred == nil {
		out.Starred = []string{}
	}
	return &out, nil
}
