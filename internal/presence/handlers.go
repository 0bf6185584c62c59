package presence

import (
	"net/http"

	"candidnotes/internal/common"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type PresenceHandler struct {
	tracker Tracker
	log     *logrus.Entry
}

func NewPresenceHandler(tracker Tracker, logger *logrus.Logger) *PresenceHandler {
	return &PresenceHandler{
		tracker: tracker,
		log:     logger.WithField("component", "presence_handler"),
	}
}

func (h *PresenceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/presence", h.Online).Methods(http.MethodGet)
}

func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	users, err := h.tracker.OnlineUsers(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list online users")
		common.WriteError(w, common.PersistenceError(err, "failed to list online users"))
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}
