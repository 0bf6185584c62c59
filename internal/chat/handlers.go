package chat

import (
	"net/http"
	"strconv"
	"time"

	"candidnotes/internal/common"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type HistoryHandler struct {
	pipeline *MessagePipeline
	log      *logrus.Entry
}

func NewHistoryHandler(pipeline *MessagePipeline, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{
		pipeline: pipeline,
		log:      logger.WithField("component", "history_handler"),
	}
}

func (h *HistoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/candidates/{candidateID}/messages", h.History).Methods(http.MethodGet)
}

// History serves GET /candidates/{candidateID}/messages?limit=&before=&before_id=
func (h *HistoryHandler) History(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			common.WriteError(w, common.ValidationError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	var cursor common.HistoryCursor
	if raw := query.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			common.WriteError(w, common.ValidationError("before must be an RFC3339 timestamp"))
			return
		}
		cursor.Before = t
	}
	if cursor.BeforeID = query.Get("before_id"); cursor.BeforeID != "" && cursor.Before.IsZero() {
		common.WriteError(w, common.ValidationError("before_id requires before"))
		return
	}

	messages, err := h.pipeline.History(r.Context(), mux.Vars(r)["candidateID"], limit, cursor)
	if err != nil {
		if common.HTTPStatus(err) >= http.StatusInternalServerError {
			h.log.WithError(err).Error("failed to load history")
		}
		common.WriteError(w, err)
		return
	}

	common.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}
