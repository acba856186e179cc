package handlers

import (
	"net/http"

	"SafeCircle/internal/models"
	"SafeCircle/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	DeviceID string `json:"deviceId" binding:"required"`
}

// 注册设备，同一 deviceId 重复注册返回原 userId
func (h *Handlers) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, models.ErrMissingFields)
		return
	}

	userID, err := h.svc.Registry.Register(c.Request.Context(), req.Username, req.DeviceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID})
}

// 经纬度与 fcmToken 可选，缺省时保留已有值
type locationRequest struct {
	UserID    *int64   `json:"userId" binding:"required"`
	Username  string   `json:"username" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp *int64   `json:"timestamp" binding:"required"`
	FCMToken  *string  `json:"fcmToken"`
}

func (h *Handlers) handleReportLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, models.ErrMissingFields)
		return
	}

	err := h.svc.Ledger.Report(c.Request.Context(), models.LocationReport{
		UserID:    *req.UserID,
		Username:  req.Username,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: *req.Timestamp,
		Token:     req.FCMToken,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nil)
}

func (h *Handlers) handleListLocations(c *gin.Context) {
	recs, err := h.svc.Ledger.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handlers) handleGetLocation(c *gin.Context) {
	userID, err := cast.ToInt64E(c.Param("userId"))
	if err != nil || userID <= 0 {
		response.Error(c, models.ErrMissingFields)
		return
	}
	rec, err := h.svc.Ledger.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
