package notif

import (
	"net/http"
	"strconv"

	"candidnotes/internal/common"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NotificationHandler exposes the notification operations over REST. Every
// route expects common.AuthMiddleware in front of it.
type NotificationHandler struct {
	service *NotificationService
	log     *logrus.Entry
}

func NewNotificationHandler(service *NotificationService, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		log:     logger.WithField("component", "notification_handler"),
	}
}

func (h *NotificationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.MarkAllRead).Methods(http.MethodPut)
	r.HandleFunc("/notifications/{notificationID}/read", h.MarkAsRead).Methods(http.MethodPut)
	r.HandleFunc("/notifications/{notificationID}", h.Delete).Methods(http.MethodDelete)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := common.IdentityFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.AuthenticationError(nil, "user not authenticated"))
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	unreadOnly, _ := strconv.ParseBool(query.Get("unreadOnly"))

	result, err := h.service.List(r.Context(), identity.UserID, page, limit, unreadOnly)
	if err != nil {
		h.fail(w, err, "failed to list notifications")
		return
	}
	common.WriteJSON(w, http.StatusOK, result)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := common.IdentityFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.AuthenticationError(nil, "user not authenticated"))
		return
	}

	count, err := h.service.UnreadCount(r.Context(), identity.UserID)
	if err != nil {
		h.fail(w, err, "failed to count unread notifications")
		return
	}
	common.WriteJSON(w, http.StatusOK, common.UnreadCountPayload{Count: count})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := common.IdentityFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.AuthenticationError(nil, "user not authenticated"))
		return
	}

	count, err := h.service.MarkAsRead(r.Context(), identity.UserID, mux.Vars(r)["notificationID"])
	if err != nil {
		h.fail(w, err, "failed to mark notification read")
		return
	}
	common.WriteJSON(w, http.StatusOK, common.UnreadCountPayload{Count: count})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := common.IdentityFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.AuthenticationError(nil, "user not authenticated"))
		return
	}

	count, err := h.service.MarkAllRead(r.Context(), identity.UserID)
	if err != nil {
		h.fail(w, err, "failed to mark all notifications read")
		return
	}
	common.WriteJSON(w, http.StatusOK, common.UnreadCountPayload{Count: count})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := common.IdentityFromContext(r.Context())
	if !ok {
		common.WriteError(w, common.AuthenticationError(nil, "user not authenticated"))
		return
	}

	count, err := h.service.Delete(r.Context(), identity.UserID, mux.Vars(r)["notificationID"])
	if err != nil {
		h.fail(w, err, "failed to delete notification")
		return
	}
	common.WriteJSON(w, http.StatusOK, common.UnreadCountPayload{Count: count})
}

func (h *NotificationHandler) fail(w http.ResponseWriter, err error, msg string) {
	if common.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.WithError(err).Error(msg)
	}
	common.WriteError(w, err)
}
