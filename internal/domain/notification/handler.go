package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"estatecollab/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetNotifications returns the current user's notification backlog.
// @Summary		List notifications
// @Description	Returns the newest notifications first together with the unread count. Pass next_cursor back as cursor to load older pages.
// @Tags		Notifications
// @Security	BearerAuth
// @Param		cursor	query	string	false	"Cursor returned by the previous page"
// @Param		limit	query	int		false	"Page size (default 20, max 100)"
// @Success		200	{object}	NotificationListResponse
// @Failure		400	{object}	map[string]interface{} "Invalid cursor"
// @Failure		401	{object}	map[string]interface{}
// @Router		/notifications [GET]
func (h *Handler) GetNotifications(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	limit := DefaultPageSize
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = v
	}

	page, err := h.service.List(c.Request.Context(), userID, c.Query("cursor"), limit)
	if err != nil {
		handleNotificationError(c, err)
		return
	}

	items := make([]*NotificationResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, NotificationResponseFromEntity(&page.Items[i]))
	}

	response.Success(c, http.StatusOK, NotificationListResponse{
		Notifications: items,
		NextCursor:    page.NextCursor,
		HasMore:       page.HasMore,
		UnreadCount:   page.UnreadCount,
	})
}

// GetUnreadCount returns the number of unread notifications.
// @Summary		Unread count
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	UnreadCountResponse
// @Router		/notifications/unread-count [GET]
func (h *Handler) GetUnreadCount(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	count, err := h.service.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead marks one notification as read.
// @Summary		Mark as read
// @Tags		Notifications
// @Security	BearerAuth
// @Param		id	path	string	true	"Notification ID"
// @Success		200	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/notifications/{id}/read [PATCH]
func (h *Handler) MarkAsRead(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	id := c.Param("id")
	if err := h.service.MarkAsRead(c.Request.Context(), userID, id); err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id, "read": true})
}

// MarkAllAsRead marks every notification of the user as read.
// @Summary		Mark all as read
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}
// @Router		/notifications/read-all [POST]
func (h *Handler) MarkAllAsRead(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	updated, err := h.service.MarkAllAsRead(c.Request.Context(), userID)
	if err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// DeleteNotification removes a notification from the user's backlog.
// @Summary		Delete notification
// @Tags		Notifications
// @Security	BearerAuth
// @Param		id	path	string	true	"Notification ID"
// @Success		200	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/notifications/{id} [DELETE]
func (h *Handler) DeleteNotification(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// GetPreferences returns the user's delivery preferences.
// @Summary		Get notification preferences
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	PreferencesResponse
// @Router		/notifications/preferences [GET]
func (h *Handler) GetPreferences(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	prefs, err := h.service.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, PreferencesResponseFromEntity(prefs))
}

// UpdatePreferences changes the provided preference flags.
// @Summary		Update notification preferences
// @Tags		Notifications
// @Security	BearerAuth
// @Param		request	body	UpdatePreferencesRequest	true	"Flags to change"
// @Success		200	{object}	PreferencesResponse
// @Failure		400	{object}	map[string]interface{}
// @Router		/notifications/preferences [PATCH]
func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	prefs, err := h.service.UpdatePreferences(c.Request.Context(), userID, req)
	if err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, PreferencesResponseFromEntity(prefs))
}

// ResetPreferences restores the default preferences.
// @Summary		Reset notification preferences
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	PreferencesResponse
// @Router		/notifications/preferences/reset [POST]
func (h *Handler) ResetPreferences(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c)
		return
	}

	prefs, err := h.service.ResetPreferences(c.Request.Context(), userID)
	if err != nil {
		handleNotificationError(c, err)
		return
	}

	response.Success(c, http.StatusOK, PreferencesResponseFromEntity(prefs))
}

func handleNotificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Notification not found")
	case errors.Is(err, ErrInvalidCursor):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid cursor")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Notification request failed")
	}
}
