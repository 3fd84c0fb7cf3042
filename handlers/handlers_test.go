package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alert-backend/database"
	"alert-backend/models"
	"alert-backend/service"
	ws "alert-backend/websocket"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	url string
	err error
}

func (s *stubUploader) Upload(_ context.Context, _ []byte) (string, error) {
	return s.url, s.err
}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, *stubUploader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := ws.NewHub()
	go hub.Run()

	uploader := &stubUploader{}
	svc := service.NewService(database.NewWithDB(db), uploader, hub, nil)
	h := NewHandlers(svc, hub)

	router := gin.New()
	router.GET("/random-user", h.RandomUser)
	router.GET("/random-admin", h.RandomAdmin)
	router.GET("/tipo-alerta", h.AlertTypes)
	router.POST("/trigger-panic-button", h.TriggerPanic)
	router.POST("/send-alert", h.SubmitAlert)
	router.GET("/active-alarms", h.ActiveAlerts)
	router.GET("/alarmas/:id", h.AlertByID)
	router.POST("/sirena_2/:id", h.AssignSiren)
	router.POST("/feedback/:id", h.ResolveAlert)
	router.POST("/estado/:id", h.SetAlertState)
	router.GET("/ultima-alerta", h.LatestAlert)
	router.GET("/health", h.HealthCheck)

	return router, mock, uploader
}

func performJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestRandomUserEndpoint(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectQuery(`SELECT id, username, mail FROM usuarios ORDER BY RAND\(\) LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "mail"}).
			AddRow(3, "jdoe", "jdoe@example.com"))

	w := performJSON(router, http.MethodGet, "/random-user", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var user models.SampledUser
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "jdoe", user.Username)
}

func TestRandomUserEmptyTable(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectQuery(`SELECT id, username, mail FROM usuarios ORDER BY RAND\(\) LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "mail"}))

	w := performJSON(router, http.MethodGet, "/random-user", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, errorBody(t, w))
}

func TestAlertTypesEndpoint(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectQuery(`SELECT id, descripcion FROM tipo_alerta`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "descripcion"}).
			AddRow(1, "Robo").
			AddRow(8, "Botón de pánico"))

	w := performJSON(router, http.MethodGet, "/tipo-alerta", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var types []models.AlertType
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &types))
	assert.Len(t, types, 2)
}

func TestTriggerPanicEndpoint(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectExec(`(?s)INSERT INTO alarmas(.+)`).
		WillReturnResult(sqlmock.NewResult(44, 1))

	w := performJSON(router, http.MethodPost, "/trigger-panic-button",
		`{"id_usuario": 7, "latitud": 10.0, "longitud": 20.0}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(44), body["id"])
}

func TestTriggerPanicMissingUser(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodPost, "/trigger-panic-button", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, errorBody(t, w))
}

func TestTriggerPanicInvalidJSON(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodPost, "/trigger-panic-button", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	if photo != nil {
		part, err := writer.CreateFormFile("foto", "foto.jpg")
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buffer, writer.FormDataContentType()
}

func TestSubmitAlertEndpoint(t *testing.T) {
	router, mock, uploader := newTestRouter(t)
	uploader.url = "https://media.example.com/a.jpg"

	mock.ExpectExec(`(?s)INSERT INTO alarmas(.+)`).
		WillReturnResult(sqlmock.NewResult(42, 1))

	body, contentType := multipartBody(t, map[string]string{
		"id_usuario": "7",
		"id_tipo":    "3",
		"mensaje":    "intruso",
		"latitud":    "10.0",
		"longitud":   "20.0",
	}, []byte{0xff, 0xd8, 0xff})

	req := httptest.NewRequest(http.MethodPost, "/send-alert", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(42), response["id"])
	assert.Equal(t, "https://media.example.com/a.jpg", response["foto_url"])
}

func TestSubmitAlertBadLatitude(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, contentType := multipartBody(t, map[string]string{
		"id_usuario": "7",
		"id_tipo":    "3",
		"latitud":    "north",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/send-alert", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "latitud must be a number", errorBody(t, w))
}

func TestSubmitAlertMalformedMultipart(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// A declared file part with no closing boundary must be rejected, not
	// treated as a submission without a photo.
	body := "--boundary\r\n" +
		"Content-Disposition: form-data; name=\"foto\"; filename=\"a.jpg\"\r\n" +
		"Content-Type: image/jpeg\r\n\r\n" +
		"truncated"
	req := httptest.NewRequest(http.MethodPost, "/send-alert", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "malformed multipart body", errorBody(t, w))
}

func TestSubmitAlertUploadFailure(t *testing.T) {
	router, _, uploader := newTestRouter(t)
	uploader.err = assert.AnError

	body, contentType := multipartBody(t, map[string]string{
		"id_usuario": "7",
		"id_tipo":    "3",
	}, []byte{0x01})

	req := httptest.NewRequest(http.MethodPost, "/send-alert", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "media upload failed", errorBody(t, w))
}

func TestActiveAlertsEmpty(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectQuery(`(?s)SELECT(.+)FROM alarmas(.+)WHERE alarmas.estado = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id_alarma", "mensaje", "latitud", "longitud", "foto_url",
			"nombre_usuario", "apellido_usuario", "telefono_usuario", "rol_usuario",
			"dependencia_usuario", "descripcion_georeferencia", "descripcion_tipo_alerta", "fecha",
		}))

	w := performJSON(router, http.MethodGet, "/active-alarms", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestAlertByIDBadPath(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodGet, "/alarmas/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id must be an integer", errorBody(t, w))
}

func TestResolveAlertEndpoint(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectExec(`UPDATE alarmas SET estado = (.+), feedback = (.+) WHERE id = (.+)`).
		WithArgs(models.StateResolved, "false alarm", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := performJSON(router, http.MethodPost, "/feedback/7", `{"feedback": "false alarm"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResolveAlertBlankFeedback(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodPost, "/feedback/7", `{"feedback": "  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, errorBody(t, w))
}

func TestResolveAlertNotFound(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectExec(`UPDATE alarmas SET estado = (.+), feedback = (.+) WHERE id = (.+)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := performJSON(router, http.MethodPost, "/feedback/999", `{"feedback": "ok"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetAlertStateInvalid(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodPost, "/estado/7", `{"estado": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, errorBody(t, w))

	w = performJSON(router, http.MethodPost, "/estado/7", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "estado must be 0 or 1", errorBody(t, w))
}

func TestAssignSirenDefaultsSirenID(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectExec(`UPDATE sirenas SET estado = (.+) WHERE id = (.+)`).
		WithArgs(models.StateActive, int64(DefaultSirenID)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE alarmas SET id_sirena = (.+) WHERE id = (.+)`).
		WithArgs(int64(DefaultSirenID), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := performJSON(router, http.MethodPost, "/sirena_2/7", `{"estado": 1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignSirenMissingState(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodPost, "/sirena_2/7", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "estado must be 0 or 1", errorBody(t, w))
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := performJSON(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "alert-backend", health.Service)
}
