package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"candidnotes/internal/common"
	"candidnotes/internal/logging"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryHandler(t *testing.T) {
	pipeline, _, _, _ := newMemoryPipeline(t)
	for _, text := range []string{"one", "two", "three"} {
		_, err := pipeline.Submit(context.Background(), bobIdent, common.Submission{CandidateID: "E1", Content: text})
		require.NoError(t, err)
	}

	r := mux.NewRouter()
	NewHistoryHandler(pipeline, logging.Discard()).RegisterRoutes(r)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
	}{
		{name: "all", path: "/candidates/E1/messages", wantStatus: http.StatusOK, wantCount: 3},
		{name: "limited", path: "/candidates/E1/messages?limit=1", wantStatus: http.StatusOK, wantCount: 1},
		{name: "before the epoch", path: "/candidates/E1/messages?before=1970-01-01T00:00:00Z", wantStatus: http.StatusOK, wantCount: 0},
		{name: "bad limit", path: "/candidates/E1/messages?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "bad before", path: "/candidates/E1/messages?before=yesterday", wantStatus: http.StatusBadRequest},
		{name: "before_id alone", path: "/candidates/E1/messages?before_id=abc", wantStatus: http.StatusBadRequest},
		{name: "unknown candidate", path: "/candidates/nope/messages", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				Messages []*common.MessageView `json:"messages"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Len(t, body.Messages, tt.wantCount)
		})
	}
}
