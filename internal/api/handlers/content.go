package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/conference-schedule/backend/internal/api/middleware"
	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/storage"
)

// ContentLister reads mirrored feed buckets.
type ContentLister interface {
	List(ctx context.Context, bucket string) ([]map[string]any, error)
}

// ListBucket returns every live row of the bucket named in the path.
func ListBucket(content ContentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bucket := mux.Vars(r)["bucket"]

		rows, err := content.List(r.Context(), bucket)
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Unknown bucket "+bucket)
			return
		}
		if err != nil {
			logging.Error().Err(err).Str("bucket", bucket).Msg("Listing bucket")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list "+bucket)
			return
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}
