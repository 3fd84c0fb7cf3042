package models

import "time"

// Alert states in the alarmas table.
const (
	StateResolved = 0
	StateActive   = 1
)

// PanicAlertType is the fixed tipo_alerta id used by the panic button.
const PanicAlertType = 8

// Alert is a row in the alarmas table.
type Alert struct {
	ID        int64    `json:"id"`
	UserID    int64    `json:"id_usuario"`
	TypeID    int64    `json:"id_tipo"`
	Message   *string  `json:"mensaje"`
	Latitude  *float64 `json:"latitud"`
	Longitude *float64 `json:"longitud"`
	PhotoURL  *string  `json:"foto_url"`
	GeoRefID  *int64   `json:"id_georeferencia,omitempty"`
	SirenID   *int64   `json:"id_sirena,omitempty"`
	State     int      `json:"estado"`
	Feedback  *string  `json:"feedback,omitempty"`
	CreatedAt string   `json:"fecha"`
}

// AlertView is an alarmas row joined with the reporter, the alert type
// and the optional georeference, as the dashboard consumes it.
type AlertView struct {
	ID            int64    `json:"id_alarma"`
	Message       *string  `json:"mensaje"`
	Latitude      *float64 `json:"latitud"`
	Longitude     *float64 `json:"longitud"`
	PhotoURL      *string  `json:"foto_url"`
	UserFirstName string   `json:"nombre_usuario"`
	UserLastName  string   `json:"apellido_usuario"`
	UserPhone     *string  `json:"telefono_usuario"`
	UserRole      string   `json:"rol_usuario"`
	UserUnit      *string  `json:"dependencia_usuario"`
	GeoRefDesc    *string  `json:"descripcion_georeferencia"`
	TypeDesc      string   `json:"descripcion_tipo_alerta"`
	CreatedAt     string   `json:"fecha"`
}

// AlertType is a row of the fixed tipo_alerta taxonomy.
type AlertType struct {
	ID          int64  `json:"id"`
	Description string `json:"descripcion"`
}

// SampledUser is one randomly sampled usuarios/admin row.
type SampledUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Mail     string `json:"mail"`
}

// AlertResolvedEvent is the payload of an alert-resolved broadcast.
type AlertResolvedEvent struct {
	ID       int64  `json:"id"`
	State    int    `json:"estado"`
	Feedback string `json:"feedback"`
}

// BroadcastMessage represents a message sent to WebSocket clients
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
	ConnectedClients int    `json:"connected_clients,omitempty"`
	LastAlertID      int64  `json:"last_alert_id,omitempty"`
}
