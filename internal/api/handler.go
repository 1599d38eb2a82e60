package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/karanvs/go-emergency-dispatch/internal/coordinator"
	"github.com/karanvs/go-emergency-dispatch/internal/lifecycle"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
	"github.com/karanvs/go-emergency-dispatch/internal/repository"
	"github.com/karanvs/go-emergency-dispatch/internal/stream"
)

const defaultActiveRadiusKm = 20.0

type Handler struct {
	coord      *coordinator.Coordinator
	responders repository.ResponderRepository
	ws         *stream.WSHandler
}

func NewHandler(coord *coordinator.Coordinator, responders repository.ResponderRepository, ws *stream.WSHandler) *Handler {
	return &Handler{
		coord:      coord,
		responders: responders,
		ws:         ws,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/emergency/alert", h.createAlert)
	r.PATCH("/emergency/:id/status", h.updateStatus)
	r.GET("/emergency/active", h.activeEmergencies)
	r.POST("/responders", h.registerResponder)
	r.GET("/responders", h.listResponders)
	r.GET("/responders/:id", h.getResponder)
	r.GET("/health", h.health)
	if h.ws != nil {
		r.GET("/ws", gin.WrapH(h.ws))
	}
}

type alertRequest struct {
	UserID     string               `json:"userId"`
	Type       string               `json:"type" binding:"required"`
	Reason     string               `json:"reason"`
	Location   models.Location      `json:"location" binding:"required"`
	SensorData *models.SensorSample `json:"sensorData"`
	Priority   string               `json:"priority"`
}

func (h *Handler) createAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	emType := models.EmergencyType(req.Type)
	if !emType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid emergency type: " + req.Type})
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = c.GetHeader("X-User-ID")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	trigger := &models.TriggerEvent{
		Reason:    reasonFor(emType, req.Reason),
		Severity:  priorityFor(emType, req.Priority),
		UserID:    userID,
		Location:  req.Location,
		Sample:    req.SensorData,
		Timestamp: time.Now(),
	}

	e, notified, err := h.coord.HandleTrigger(c.Request.Context(), trigger)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record emergency"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"emergency":          e,
		"notifiedResponders": notified,
	})
}

type statusRequest struct {
	Status  string `json:"status" binding:"required"`
	ActorID string `json:"actorId"`
	Notes   string `json:"notes"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	status := models.EmergencyStatus(req.Status)
	if !status.Valid() || status == models.StatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + req.Status})
		return
	}

	e, err := h.coord.UpdateStatus(c.Request.Context(), c.Param("id"), status, req.ActorID, req.Notes)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "emergency not found"})
		return
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"emergency": e})
}

func (h *Handler) activeEmergencies(c *gin.Context) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")

	var (
		list []models.Emergency
		err  error
	)
	if latStr == "" && lngStr == "" {
		// No query point: unbounded listing of open emergencies.
		list, err = h.coord.ActiveNear(c.Request.Context(), 0, 0, 0)
	} else {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr != nil || lngErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng must both be valid coordinates"})
			return
		}
		radius := defaultActiveRadiusKm
		if r := c.Query("radius"); r != "" {
			if v, err := strconv.ParseFloat(r, 64); err == nil && v > 0 {
				radius = v
			}
		}
		list, err = h.coord.ActiveNear(c.Request.Context(), lat, lng, radius)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch emergencies"})
		return
	}

	if list == nil {
		list = []models.Emergency{}
	}
	c.JSON(http.StatusOK, gin.H{"emergencies": list})
}

type responderRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name" binding:"required"`
	Role      string          `json:"role" binding:"required"`
	Location  models.Location `json:"location" binding:"required"`
	Phone     string          `json:"phone"`
	PushToken string          `json:"pushToken"`
	Available *bool           `json:"available"`
}

func (h *Handler) registerResponder(c *gin.Context) {
	var req responderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	role := models.ResponderRole(req.Role)
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid responder role: " + req.Role})
		return
	}

	r := &models.Responder{
		ID:        req.ID,
		Name:      req.Name,
		Role:      role,
		Location:  req.Location,
		Phone:     req.Phone,
		PushToken: req.PushToken,
		Available: true,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if req.Available != nil {
		r.Available = *req.Available
	}

	if err := h.responders.UpsertResponder(c.Request.Context(), r); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register responder"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"responder": r})
}

func (h *Handler) getResponder(c *gin.Context) {
	r, err := h.responders.GetResponder(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "responder not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch responder"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"responder": r})
}

func (h *Handler) listResponders(c *gin.Context) {
	list, err := h.responders.ListAvailable(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list responders"})
		return
	}
	if list == nil {
		list = []models.Responder{}
	}
	c.JSON(http.StatusOK, gin.H{"responders": list})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// reasonFor derives the trigger reason when the caller does not supply
// one (manual app actions send only the emergency type; devices send the
// firing rule's reason).
func reasonFor(t models.EmergencyType, reason string) models.TriggerReason {
	if reason != "" {
		return models.TriggerReason(reason)
	}
	switch t {
	case models.EmergencyTypeManualSOS:
		return models.ReasonManualSOS
	case models.EmergencyTypeMedical:
		return models.ReasonVitals
	case models.EmergencyTypePanic:
		return models.ReasonPanic
	default:
		return models.ReasonHighImpact
	}
}

func priorityFor(t models.EmergencyType, priority string) models.Priority {
	if p := models.Priority(priority); p.Rank() >= 0 {
		return p
	}
	switch t {
	case models.EmergencyTypeAccident, models.EmergencyTypeMedical:
		return models.PriorityCritical
	default:
		return models.PriorityHigh
	}
}
