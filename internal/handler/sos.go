package handlers

import (
	"net/http"
	"strings"

	"SafeCircle/internal/models"
	"SafeCircle/internal/service"
	"SafeCircle/pkg/response"

	"github.com/gin-gonic/gin"
)

type createSOSRequest struct {
	UserID    *int64   `json:"userId" binding:"required"`
	Username  string   `json:"username" binding:"required"`
	RescuerID *int64   `json:"rescuerId" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Timestamp *int64   `json:"timestamp" binding:"required"`
}

type updateSOSRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Timestamp *int64   `json:"timestamp" binding:"required"`
}

func (h *Handlers) handleCreateSOS(c *gin.Context) {
	var req createSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, models.ErrMissingFields)
		return
	}

	publicID, err := h.svc.Sessions.Create(c.Request.Context(), models.NewSession{
		SubjectUserID:   *req.UserID,
		SubjectUsername: req.Username,
		RescuerID:       *req.RescuerID,
		Lat:             *req.Latitude,
		Lon:             *req.Longitude,
		Timestamp:       *req.Timestamp,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"uuid": publicID})
}

func (h *Handlers) handleUpdateSOS(c *gin.Context) {
	var req updateSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, models.ErrMissingFields)
		return
	}

	err := h.svc.Sessions.UpdatePosition(c.Request.Context(), c.Param("uuid"), *req.Latitude, *req.Longitude, *req.Timestamp)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nil)
}

func (h *Handlers) handleResolveSOS(c *gin.Context) {
	if err := h.svc.Sessions.Resolve(c.Request.Context(), c.Param("uuid")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nil)
}

func (h *Handlers) handleListActiveSOS(c *gin.Context) {
	sessions, err := h.svc.Sessions.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handlers) handleGetSOS(c *gin.Context) {
	session, err := h.svc.Sessions.Get(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// 救援者订阅会话位置，会话结束后流关闭。先订阅再校验状态，避免漏掉结束事件
func (h *Handlers) handleStreamSOS(c *gin.Context) {
	publicID := c.Param("uuid")
	err := h.svc.Hub().Serve(c, publicID, func() error {
		session, err := h.svc.Sessions.Get(c.Request.Context(), publicID)
		if err != nil {
			return err
		}
		if session.Status != models.StatusActive {
			return models.ErrSessionNotFound
		}
		return nil
	}, func(ev string) bool {
		return strings.HasPrefix(ev, "event: "+service.EventResolved+"\n")
	})
	if err != nil {
		response.Error(c, err)
	}
}
