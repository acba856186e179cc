package handlers

import (
	"net/http"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type circleRequest struct {
	UserID   *int64 `json:"userId"`
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
	FCMToken string `json:"fcmToken" binding:"required"`
}

func (h *Handlers) handleAddCircleSubject(c *gin.Context) {
	var req circleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, models.ErrMissingFields)
		return
	}

	subject := &models.AlertSubject{
		UserID:   req.UserID,
		Username: req.Username,
		Name:     req.Name,
		FCMToken: &req.FCMToken,
	}
	if err := h.svc.Dispatcher.AddSubject(c.Request.Context(), subject); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": subject.ID})
}

// sessionRef 兼容旧客户端的 id 字段，数字或数字字符串均可
type safetyResponseRequest struct {
	SessionRef interface{} `json:"sessionRef"`
	ID         interface{} `json:"id"`
	Safe       *bool       `json:"safe"`
	Comment    *string     `json:"comment"`
}

func (r safetyResponseRequest) ref() (int64, bool) {
	raw := r.SessionRef
	if raw == nil {
		raw = r.ID
	}
	if raw == nil {
		return 0, false
	}
	ref, err := cast.ToInt64E(raw)
	if err != nil || ref <= 0 {
		return 0, false
	}
	return ref, true
}

func (h *Handlers) handleResponse(c *gin.Context) {
	var req safetyResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, models.ErrMissingFields)
		return
	}
	ref, ok := req.ref()
	if !ok {
		response.Fail(c, http.StatusBadRequest, "sessionRef is required")
		return
	}

	if err := h.svc.Dispatcher.RecordResponse(c.Request.Context(), ref, req.Safe, req.Comment); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Response saved successfully"})
}
