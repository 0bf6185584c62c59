package notif

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

func newTestRouter(t *testing.T, f *fanoutFixture, userID string) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(common.WithIdentity(req.Context(), common.Identity{UserID: userID}))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewNotificationHandler(f.service, logging.Discard()).RegisterRoutes(r)
	return r
}

func doRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNotificationHandler_List(t *testing.T) {
	f := newFanoutFixture(t, nil)
	seedNotifications(t, f.store, "alice", 3)
	r := newTestRouter(t, f, "alice")

	rec := doRequest(r, http.MethodGet, "/notifications?page=1&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var page common.NotificationPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Notifications, 2)
	assert.Equal(t, int64(3), page.UnreadCount)
	assert.Equal(t, 2, page.Limit)
}

func TestNotificationHandler_UnreadCount(t *testing.T) {
	f := newFanoutFixture(t, nil)
	seedNotifications(t, f.store, "alice", 2)
	r := newTestRouter(t, f, "alice")

	rec := doRequest(r, http.MethodGet, "/notifications/unread-count")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestNotificationHandler_MarkAsRead(t *testing.T) {
	f := newFanoutFixture(t, nil)
	seeded := seedNotifications(t, f.store, "alice", 2)
	r := newTestRouter(t, f, "alice")

	rec := doRequest(r, http.MethodPut, "/notifications/"+seeded[0].ID+"/read")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = doRequest(r, http.MethodPut, "/notifications/missing/read")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NotFoundError", body["code"])
}

func TestNotificationHandler_MarkAllReadAndDelete(t *testing.T) {
	f := newFanoutFixture(t, nil)
	seeded := seedNotifications(t, f.store, "alice", 2)
	r := newTestRouter(t, f, "alice")

	rec := doRequest(r, http.MethodPut, "/notifications/read-all")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())

	rec = doRequest(r, http.MethodDelete, "/notifications/"+seeded[1].ID)
	require.Equal(t, http.StatusOK, rec.Code)

	notifications, err := f.store.NotificationsByUser(context.Background(), "alice", 0, 0, false)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestNotificationHandler_RequiresIdentity(t *testing.T) {
	f := newFanoutFixture(t, nil)
	r := newTestRouter(t, f, "")

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/notifications"},
		{http.MethodGet, "/notifications/unread-count"},
		{http.MethodPut, "/notifications/read-all"},
		{http.MethodPut, "/notifications/n1/read"},
		{http.MethodDelete, "/notifications/n1"},
	} {
		rec := doRequest(r, tc.method, tc.path)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}
