package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"alert-backend/models"
	"alert-backend/service"
	ws "alert-backend/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// MaxPhotoBytes caps the uploaded photo size (the clients send camera
// shots; anything larger is rejected before touching the media service).
const MaxPhotoBytes = 10 << 20

// DefaultSirenID is the siren the dashboard drives when the request
// names none.
const DefaultSirenID = 2

// Handlers contains all HTTP handlers
type Handlers struct {
	svc *service.Service
	hub *ws.Hub
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service, hub *ws.Hub) *Handlers {
	return &Handlers{
		svc: svc,
		hub: hub,
	}
}

// RandomUser handles GET /random-user
func (h *Handlers) RandomUser(c *gin.Context) {
	user, err := h.svc.RandomUser(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RandomAdmin handles GET /random-admin
func (h *Handlers) RandomAdmin(c *gin.Context) {
	admin, err := h.svc.RandomAdmin(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, admin)
}

// AlertTypes handles GET /tipo-alerta
func (h *Handlers) AlertTypes(c *gin.Context) {
	types, err := h.svc.AlertTypes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

type panicRequest struct {
	UserID    int64    `json:"id_usuario"`
	Latitude  *float64 `json:"latitud"`
	Longitude *float64 `json:"longitud"`
}

// TriggerPanic handles POST /trigger-panic-button
func (h *Handlers) TriggerPanic(c *gin.Context) {
	var req panicRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	id, err := h.svc.TriggerPanic(c.Request.Context(), req.UserID, req.Latitude, req.Longitude)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// SubmitAlert handles POST /send-alert (multipart, field foto)
func (h *Handlers) SubmitAlert(c *gin.Context) {
	if _, err := c.MultipartForm(); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed multipart body"})
		return
	}

	userID, err := formInt64(c, "id_usuario")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_usuario must be an integer"})
		return
	}
	typeID, err := formInt64(c, "id_tipo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id_tipo must be an integer"})
		return
	}
	latitude, err := formFloat(c, "latitud")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitud must be a number"})
		return
	}
	longitude, err := formFloat(c, "longitud")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "longitud must be a number"})
		return
	}

	var message *string
	if value := c.PostForm("mensaje"); value != "" {
		message = &value
	}

	photo, err := readPhoto(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.svc.SubmitAlert(c.Request.Context(), &service.SubmitAlertRequest{
		UserID:    userID,
		TypeID:    typeID,
		Message:   message,
		Latitude:  latitude,
		Longitude: longitude,
		Photo:     photo,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       alert.ID,
		"foto_url": alert.PhotoURL,
	})
}

// ActiveAlerts handles GET /active-alarms
func (h *Handlers) ActiveAlerts(c *gin.Context) {
	alerts, err := h.svc.ActiveAlerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.AlertView{}
	}
	c.JSON(http.StatusOK, alerts)
}

// AlertByID handles GET /alarmas/:id
func (h *Handlers) AlertByID(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	alert, err := h.svc.AlertByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// LatestAlert handles GET /ultima-alerta
func (h *Handlers) LatestAlert(c *gin.Context) {
	alert, err := h.svc.LatestAlert(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type sirenRequest struct {
	State   *int  `json:"estado"`
	SirenID int64 `json:"id_sirena"`
}

// AssignSiren handles POST /sirena_2/:id
func (h *Handlers) AssignSiren(c *gin.Context) {
	alertID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	var req sirenRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.State == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estado must be 0 or 1"})
		return
	}
	sirenID := req.SirenID
	if sirenID == 0 {
		sirenID = DefaultSirenID
	}

	if err := h.svc.AssignSiren(c.Request.Context(), sirenID, alertID, *req.State); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "siren updated and alert stamped"})
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

// ResolveAlert handles POST /feedback/:id
func (h *Handlers) ResolveAlert(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	var req feedbackRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if err := h.svc.ResolveAlert(c.Request.Context(), id, req.Feedback); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert resolved"})
}

type stateRequest struct {
	State *int `json:"estado"`
}

// SetAlertState handles POST /estado/:id
func (h *Handlers) SetAlertState(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	var req stateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.State == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estado must be 0 or 1"})
		return
	}

	if err := h.svc.SetAlertState(c.Request.Context(), id, *req.State); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert state updated"})
}

// HealthCheck returns the service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	connectedClients, lastAlertID := h.hub.GetStats()

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "healthy",
		Service:          "alert-backend",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConnectedClients: connectedClients,
		LastAlertID:      lastAlertID,
	})
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func formInt64(c *gin.Context, field string) (int64, error) {
	value := c.PostForm(field)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func formFloat(c *gin.Context, field string) (*float64, error) {
	value := c.PostForm(field)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func readPhoto(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile("foto")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, errors.New("malformed multipart body")
	}
	if header.Size > MaxPhotoBytes {
		return nil, errors.New("foto exceeds the 10MB limit")
	}

	file, err := header.Open()
	if err != nil {
		return nil, errors.New("failed to open foto")
	}
	defer file.Close()

	photo, err := io.ReadAll(io.LimitReader(file, MaxPhotoBytes+1))
	if err != nil {
		return nil, errors.New("failed to read foto")
	}
	if len(photo) > MaxPhotoBytes {
		return nil, errors.New("foto exceeds the 10MB limit")
	}
	return photo, nil
}

// respondError maps service errors onto HTTP statuses with a uniform
// {"error": ...} body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUpload):
		log.Errorf("Upload failure: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "media upload failed"})
	default:
		log.Errorf("Internal failure: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
