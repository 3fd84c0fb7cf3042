package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"alert-backend/database"
	"alert-backend/models"

	"github.com/apex/log"
)

// Error taxonomy surfaced to the API boundary.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrUpload     = errors.New("media upload failed")
	ErrStorage    = errors.New("storage failure")
)

const createdAtLayout = "2006-01-02 15:04:05"

// Uploader sends a raw image to the media service and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// Broadcaster pushes lifecycle events to connected dashboard clients.
type Broadcaster interface {
	BroadcastAlertCreated(alert *models.Alert)
	BroadcastAlertResolved(id int64, estado int, feedback string)
}

// EventPublisher mirrors lifecycle events to an external broker.
type EventPublisher interface {
	Publish(message interface{}) error
}

// Service is the alert lifecycle manager. It mediates every read and
// write of alert state and emits the broadcast side effects.
type Service struct {
	db       *database.Database
	uploader Uploader
	hub      Broadcaster
	events   EventPublisher
}

// NewService creates a lifecycle manager with its injected collaborators.
// events may be nil; the AMQP mirror is optional.
func NewService(db *database.Database, uploader Uploader, hub Broadcaster, events EventPublisher) *Service {
	return &Service{
		db:       db,
		uploader: uploader,
		hub:      hub,
		events:   events,
	}
}

// SubmitAlertRequest carries a full alert submission.
type SubmitAlertRequest struct {
	UserID    int64
	TypeID    int64
	Message   *string
	Latitude  *float64
	Longitude *float64
	Photo     []byte
}

// SubmitAlert validates the submission, uploads the photo when present,
// persists the alert and broadcasts one alert-created event. If the
// upload fails nothing is persisted and nothing is broadcast.
func (s *Service) SubmitAlert(ctx context.Context, req *SubmitAlertRequest) (*models.Alert, error) {
	if req.UserID == 0 {
		return nil, fmt.Errorf("%w: id_usuario is required", ErrValidation)
	}
	if req.TypeID == 0 {
		return nil, fmt.Errorf("%w: id_tipo is required", ErrValidation)
	}

	var photoURL *string
	if len(req.Photo) > 0 {
		url, err := s.uploader.Upload(ctx, req.Photo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpload, err)
		}
		photoURL = &url
	}

	alert := &models.Alert{
		UserID:    req.UserID,
		TypeID:    req.TypeID,
		Message:   req.Message,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		PhotoURL:  photoURL,
		State:     models.StateActive,
		CreatedAt: time.Now().UTC().Format(createdAtLayout),
	}

	id, err := s.db.InsertAlert(ctx, alert)
	if err != nil {
		return nil, storageError(err)
	}
	alert.ID = id

	s.hub.BroadcastAlertCreated(alert)
	s.mirrorEvent("alert-created", alert)

	return alert, nil
}

// TriggerPanic is the fast submission path: fixed panic type, no
// message, no photo and no dashboard broadcast. Returns the new id.
func (s *Service) TriggerPanic(ctx context.Context, userID int64, latitude, longitude *float64) (int64, error) {
	if userID == 0 {
		return 0, fmt.Errorf("%w: id_usuario is required", ErrValidation)
	}

	alert := &models.Alert{
		UserID:    userID,
		TypeID:    models.PanicAlertType,
		Latitude:  latitude,
		Longitude: longitude,
		State:     models.StateActive,
	}

	id, err := s.db.InsertAlert(ctx, alert)
	if err != nil {
		return 0, storageError(err)
	}
	return id, nil
}

// ResolveAlert records the feedback, flips the alert to resolved and
// broadcasts one alert-resolved event. Re-resolving overwrites the
// previous feedback; callers must not rely on idempotency.
func (s *Service) ResolveAlert(ctx context.Context, id int64, feedback string) error {
	if strings.TrimSpace(feedback) == "" {
		return fmt.Errorf("%w: feedback must not be empty", ErrValidation)
	}

	if err := s.db.ResolveAlert(ctx, id, feedback); err != nil {
		return storageError(err)
	}

	s.hub.BroadcastAlertResolved(id, models.StateResolved, feedback)
	s.mirrorEvent("alert-resolved", &models.AlertResolvedEvent{
		ID:       id,
		State:    models.StateResolved,
		Feedback: feedback,
	})

	return nil
}

// SetAlertState is the administrative estado override.
func (s *Service) SetAlertState(ctx context.Context, id int64, estado int) error {
	if estado != models.StateResolved && estado != models.StateActive {
		return fmt.Errorf("%w: estado must be 0 or 1", ErrValidation)
	}
	if err := s.db.SetAlertState(ctx, id, estado); err != nil {
		return storageError(err)
	}
	return nil
}

// AssignSiren toggles the siren's own estado flag and then stamps the
// alert with the siren reference. The two writes are sequential and
// independent: if the second fails after the first succeeded, the first
// is not rolled back.
func (s *Service) AssignSiren(ctx context.Context, sirenID, alertID int64, estado int) error {
	if estado != models.StateResolved && estado != models.StateActive {
		return fmt.Errorf("%w: estado must be 0 or 1", ErrValidation)
	}

	if err := s.db.SetSirenState(ctx, sirenID, estado); err != nil {
		return storageError(err)
	}
	if err := s.db.AssignAlertSiren(ctx, alertID, sirenID); err != nil {
		return storageError(err)
	}
	return nil
}

// ActiveAlerts returns every alert still in the active state, joined
// with reporter, type and georeference data.
func (s *Service) ActiveAlerts(ctx context.Context) ([]models.AlertView, error) {
	alerts, err := s.db.ActiveAlerts(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return alerts, nil
}

// AlertByID returns one joined alert view.
func (s *Service) AlertByID(ctx context.Context, id int64) (*models.AlertView, error) {
	view, err := s.db.AlertByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return view, nil
}

// LatestAlert returns the most recently created alert across all states.
func (s *Service) LatestAlert(ctx context.Context) (*models.AlertView, error) {
	view, err := s.db.LatestAlert(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return view, nil
}

// RandomUser returns one uniformly sampled user.
func (s *Service) RandomUser(ctx context.Context) (*models.SampledUser, error) {
	user, err := s.db.RandomUser(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return user, nil
}

// RandomAdmin returns one uniformly sampled admin.
func (s *Service) RandomAdmin(ctx context.Context) (*models.SampledUser, error) {
	admin, err := s.db.RandomAdmin(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return admin, nil
}

// AlertTypes returns the full alert type taxonomy.
func (s *Service) AlertTypes(ctx context.Context) ([]models.AlertType, error) {
	types, err := s.db.AlertTypes(ctx)
	if err != nil {
		return nil, storageError(err)
	}
	return types, nil
}

// mirrorEvent publishes a lifecycle event to the external broker, best
// effort: failures are logged and never surfaced to the caller.
func (s *Service) mirrorEvent(kind string, payload interface{}) {
	if s.events == nil {
		return
	}
	message := models.BroadcastMessage{
		Type:      kind,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(message); err != nil {
		log.Errorf("Failed to publish %s event: %v", kind, err)
	}
}

// storageError maps database errors to the service taxonomy.
func storageError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
