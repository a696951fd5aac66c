package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/code-100-precent/LingDial/internal/call"
	"github.com/code-100-precent/LingDial/internal/engine"
	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/code-100-precent/LingDial/internal/recording"
	"github.com/code-100-precent/LingDial/pkg/config"
	"github.com/code-100-precent/LingDial/pkg/response"
)

type testApp struct {
	router   *gin.Engine
	db       *gorm.DB
	demo     *engine.DemoEngine
	registry *call.Registry
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if config.GlobalConfig == nil {
		config.GlobalConfig = &config.Config{APIPrefix: "/api"}
	}

	silentLogger := glog.New(
		log.New(io.Discard, "", log.LstdFlags),
		glog.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  glog.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: silentLogger})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CallHistory{}, &models.Contact{}))

	demo := engine.NewDemoEngine()
	recorder := recording.NewController(t.TempDir(), "wav")
	registry := call.NewRegistry(db, demo, recorder, nil, call.Options{Domain: "pbx.local"})
	registry.Start()
	t.Cleanup(func() {
		registry.Stop()
		demo.Close()
	})

	router := gin.New()
	NewHandlers(db, registry, demo.Name()).Register(router)
	return &testApp{router: router, db: db, demo: demo, registry: registry}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp response.Response
	if w.Header().Get("Content-Type") != "" && json.Valid(w.Body.Bytes()) {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (a *testApp) waitState(t *testing.T, state call.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := a.registry.Status()
		return snap != nil && snap.State == state
	}, time.Second, 5*time.Millisecond)
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	app := setupTestApp(t)

	w, resp := app.do(t, http.MethodPost, "/api/call/make", MakeCallRequest{Destination: "1001"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, resp.Code)
	app.waitState(t, call.StateConnected)

	w, _ = app.do(t, http.MethodPost, "/api/call/hold", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = app.do(t, http.MethodPost, "/api/call/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = app.do(t, http.MethodPost, "/api/call/mute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = app.do(t, http.MethodPost, "/api/call/dtmf", SendDTMFRequest{Digits: "12#"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = app.do(t, http.MethodPost, "/api/call/hangup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	app.waitState(t, call.StateEnded)

	var count int64
	require.NoError(t, app.db.Model(&models.CallHistory{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMakeCall_BusyReturnsReasonCode(t *testing.T) {
	app := setupTestApp(t)

	w, _ := app.do(t, http.MethodPost, "/api/call/make", MakeCallRequest{Destination: "1001"})
	require.Equal(t, http.StatusOK, w.Code)
	app.waitState(t, call.StateConnected)

	w, resp := app.do(t, http.MethodPost, "/api/call/make", MakeCallRequest{Destination: "1002"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ReasonSessionBusy, resp.Reason)
}

func TestMakeCall_InvalidDestination(t *testing.T) {
	app := setupTestApp(t)

	w, resp := app.do(t, http.MethodPost, "/api/call/make", MakeCallRequest{Destination: "sip:bad uri@"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ReasonInvalidDestination, resp.Reason)

	w, resp = app.do(t, http.MethodPost, "/api/call/make", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ReasonInvalidDestination, resp.Reason)
}

func TestAnswer_WithoutIncomingCall(t *testing.T) {
	app := setupTestApp(t)

	w, resp := app.do(t, http.MethodPost, "/api/call/answer", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ReasonNoIncomingCall, resp.Reason)
}

func TestAnswer_IncomingCall(t *testing.T) {
	app := setupTestApp(t)

	app.demo.SimulateIncomingCall("sip:2002@pbx.local")
	app.waitState(t, call.StateRinging)

	w, _ := app.do(t, http.MethodPost, "/api/call/answer", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app.waitState(t, call.StateConnected)
}

func TestSendDTMF_InvalidDigits(t *testing.T) {
	app := setupTestApp(t)

	w, _ := app.do(t, http.MethodPost, "/api/call/make", MakeCallRequest{Destination: "1001"})
	require.Equal(t, http.StatusOK, w.Code)
	app.waitState(t, call.StateConnected)

	w, resp := app.do(t, http.MethodPost, "/api/call/dtmf", SendDTMFRequest{Digits: "12E"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ReasonInvalidDigits, resp.Reason)
}

func TestHoldWithoutCall_InvalidState(t *testing.T) {
	app := setupTestApp(t)

	w, resp := app.do(t, http.MethodPost, "/api/call/hold", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ReasonInvalidState, resp.Reason)
}

func TestHangupWithoutCall_IsNoop(t *testing.T) {
	app := setupTestApp(t)

	w, _ := app.do(t, http.MethodPost, "/api/call/hangup", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCallStatus_EmptyThenPopulated(t *testing.T) {
	app := setupTestApp(t)

	w, resp := app.do(t, http.MethodGet, "/api/call/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, resp.Data)

	w, _ = app.do(t, http.MethodPost, "/api/call/make", MakeCallRequest{Destination: "1001"})
	require.Equal(t, http.StatusOK, w.Code)
	app.waitState(t, call.StateConnected)

	w, resp = app.do(t, http.MethodGet, "/api/call/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "connected", data["state"])
	assert.Equal(t, "sip:1001@pbx.local", data["remoteUri"])
}

func TestHistoryEndpoints(t *testing.T) {
	app := setupTestApp(t)

	dir := t.TempDir()
	recPath := filepath.Join(dir, "call_1001_20260101_120000.wav")
	require.NoError(t, os.WriteFile(recPath, []byte("RIFFdata"), 0o644))

	h := &models.CallHistory{
		CallID:        "h1",
		RemoteURI:     "sip:1001@pbx.local",
		Direction:     models.CallDirectionOutbound,
		Status:        models.CallStatusEnded,
		StartTime:     time.Now(),
		RecordingPath: recPath,
	}
	require.NoError(t, models.CreateCallHistory(app.db, h))

	w, resp := app.do(t, http.MethodGet, "/api/history?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, data["total"])

	w, _ = app.do(t, http.MethodGet, "/api/history/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = app.do(t, http.MethodGet, "/api/history/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ReasonNotFound, resp.Reason)

	w, _ = app.do(t, http.MethodGet, "/api/history/1/recording", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFFdata", w.Body.String())
}

func TestHistoryRecording_Missing(t *testing.T) {
	app := setupTestApp(t)

	h := &models.CallHistory{
		CallID:    "h2",
		RemoteURI: "sip:1001@pbx.local",
		Direction: models.CallDirectionOutbound,
		Status:    models.CallStatusEnded,
		StartTime: time.Now(),
	}
	require.NoError(t, models.CreateCallHistory(app.db, h))

	// No recording on the row
	w, resp := app.do(t, http.MethodGet, "/api/history/1/recording", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ReasonNotFound, resp.Reason)

	// Row references a file that no longer exists
	require.NoError(t, models.UpdateCallHistoryFields(app.db, h.ID, map[string]any{
		"recording_path": "/nonexistent/gone.wav",
	}))
	w, resp = app.do(t, http.MethodGet, "/api/history/1/recording", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ReasonNotFound, resp.Reason)
}

func TestContactCRUD(t *testing.T) {
	app := setupTestApp(t)

	w, resp := app.do(t, http.MethodPost, "/api/contacts", ContactRequest{
		Name:   "Alice",
		SipURI: "sip:alice@pbx.local",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, resp.Code)

	// Duplicate SIP URI rejected
	w, _ = app.do(t, http.MethodPost, "/api/contacts", ContactRequest{
		Name:   "Alice Again",
		SipURI: "sip:alice@pbx.local",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = app.do(t, http.MethodGet, "/api/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)

	w, _ = app.do(t, http.MethodPut, "/api/contacts/1", ContactRequest{
		Name:        "Alice",
		SipURI:      "sip:alice@pbx.local",
		PhoneNumber: "1001",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	contact, err := models.GetContactByID(app.db, 1)
	require.NoError(t, err)
	assert.Equal(t, "1001", contact.PhoneNumber)

	w, _ = app.do(t, http.MethodDelete, "/api/contacts/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = app.do(t, http.MethodGet, "/api/contacts/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ReasonNotFound, resp.Reason)
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t)

	w, _ := app.do(t, http.MethodGet, "/api/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "demo", body["engine"])
	assert.Equal(t, false, body["activeCall"])
}
