package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	commonauth "editmarket/server/common/auth"
	"editmarket/server/common/middleware"
	"editmarket/server/common/transport/httpresp"
	"editmarket/server/realtime/domain"
	realtimeservice "editmarket/server/realtime/service"
)

type messageLister interface {
	ListMessages(ctx context.Context, orderID string, limit int) ([]domain.Message, error)
	CountUnread(ctx context.Context, orderID, userID string) (int, error)
}

type notificationLister interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
}

// HandlerDeps carries the optional collaborators; a nil field disables
// its routes.
type HandlerDeps struct {
	Attachments   *realtimeservice.AttachmentService
	Messages      messageLister
	Notifications notificationLister
}

type Handler struct {
	svc           *realtimeservice.Service
	auth          *commonauth.Service
	attachments   *realtimeservice.AttachmentService
	messages      messageLister
	notifications notificationLister
}

func NewHandler(svc *realtimeservice.Service, auth *commonauth.Service, deps HandlerDeps) *Handler {
	return &Handler{svc: svc, auth: auth, attachments: deps.Attachments, messages: deps.Messages, notifications: deps.Notifications}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ws", middleware.AuthRequired(h.auth), h.svc.HandleWS)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/presence", h.presenceSnapshot)
		if h.messages != nil {
			api.GET("/orders/:id/messages", h.listOrderMessages)
			api.GET("/orders/:id/unread", h.orderUnreadCount)
		}
		if h.notifications != nil {
			api.GET("/notifications", h.listNotifications)
			api.POST("/notifications/read", h.markNotificationsRead)
		}
		if h.attachments != nil {
			api.POST("/attachments/upload-url", h.attachmentUploadURL)
			api.GET("/attachments/download-url", h.attachmentDownloadURL)
			api.POST("/attachments/thumbnail", h.attachmentThumbnail)
			api.DELETE("/attachments", h.deleteAttachment)
		}
	}
}

func (h *Handler) presenceSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, httpresp.NewPresenceResponse(h.svc.Presence().Snapshot()))
}

func (h *Handler) listOrderMessages(c *gin.Context) {
	userID := authUserID(c)
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("order id is required"))
		return
	}
	allowed, err := h.svc.OrderAccess(c.Request.Context(), orderID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrOrderAccessDenied))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := h.messages.ListMessages(c.Request.Context(), orderID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// orderUnreadCount seeds a freshly-connected client's unread ledger
// from the read receipts on record.
func (h *Handler) orderUnreadCount(c *gin.Context) {
	userID := authUserID(c)
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("order id is required"))
		return
	}
	allowed, err := h.svc.OrderAccess(c.Request.Context(), orderID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrOrderAccessDenied))
		return
	}
	count, err := h.messages.CountUnread(c.Request.Context(), orderID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "unread": count})
}

func (h *Handler) listNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.notifications.ListRecent(c.Request.Context(), authUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *Handler) markNotificationsRead(c *gin.Context) {
	if err := h.notifications.MarkAllRead(c.Request.Context(), authUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) attachmentUploadURL(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrKeyRequired))
		return
	}
	url, err := h.attachments.UploadURL(c.Request.Context(), req.Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewURLResponse(url))
}

func (h *Handler) attachmentDownloadURL(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrKeyRequired))
		return
	}
	url, err := h.attachments.DownloadURL(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewURLResponse(url))
}

func (h *Handler) attachmentThumbnail(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrKeyRequired))
		return
	}
	thumbKey, err := h.attachments.MakeThumbnail(c.Request.Context(), req.Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"thumbnail_key": thumbKey})
}

func (h *Handler) deleteAttachment(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrKeyRequired))
		return
	}
	if _, err := h.attachments.Delete(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func authUserID(c *gin.Context) string {
	raw, _ := c.Get("auth_user_id")
	userID, _ := raw.(string)
	return userID
}
