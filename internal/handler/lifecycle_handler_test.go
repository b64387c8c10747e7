package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-lifecycle-api/internal/middleware"
	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

type guardServiceMock struct {
	allowed    bool
	err        error
	lastRef    models.EntityRef
	lastAction string
}

func (m *guardServiceMock) IsActionAllowed(ctx context.Context, ref models.EntityRef, action string) (bool, error) {
	m.lastRef = ref
	m.lastAction = action
	return m.allowed, m.err
}

func (m *guardServiceMock) AllowedActions(ctx context.Context, ref models.EntityRef) ([]service.ActionDecision, error) {
	m.lastRef = ref
	return []service.ActionDecision{{Action: models.Action{Code: "REGISTER"}, Allowed: m.allowed}}, m.err
}

type transitionServiceMock struct {
	lastReq service.TransitionRequest
	err     error
}

func (m *transitionServiceMock) Apply(ctx context.Context, req service.TransitionRequest) (*service.TransitionResult, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &service.TransitionResult{Entity: &models.LifecycleEntity{EntityType: req.Entity.Type, EntityID: req.Entity.ID, CurrentStatusCode: "APIV"}}, nil
}

func (m *transitionServiceMock) AvailableTransitions(ctx context.Context, ref models.EntityRef) ([]models.WorkflowTransition, error) {
	return []models.WorkflowTransition{{FromStatus: "APSB", ToStatus: "APIV", TriggerCode: "TRVF"}}, m.err
}

type reactorMock struct {
	lastCode string
	err      error
}

func (m *reactorMock) OnMilestoneCrossed(ctx context.Context, ref models.EntityRef, code string) (*service.MilestoneOutcome, error) {
	m.lastCode = code
	if m.err != nil {
		return nil, m.err
	}
	return &service.MilestoneOutcome{MilestoneCode: code}, nil
}

type dispatcherMock struct {
	events []service.MilestoneEvent
}

func (m *dispatcherMock) Dispatch(event service.MilestoneEvent) (string, error) {
	m.events = append(m.events, event)
	return "job-1", nil
}

type historyServiceMock struct {
	lastFilter models.HistoryFilter
	lastFormat string
}

func (m *historyServiceMock) List(ctx context.Context, ref models.EntityRef, filter models.HistoryFilter) ([]models.AuditRecord, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.AuditRecord{{ID: "rec-1", ToStatusCode: "APIV"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *historyServiceMock) PendingActions(ctx context.Context, ref models.EntityRef) ([]models.PendingAction, error) {
	return []models.PendingAction{{ID: "pa-1"}}, nil
}

func (m *historyServiceMock) Export(ctx context.Context, ref models.EntityRef, format string) ([]byte, string, error) {
	m.lastFormat = format
	return []byte("Timestamp,From\n"), "text/csv", nil
}

type holdServiceMock struct {
	placed, lifted []string
	lastActor      string
}

func (m *holdServiceMock) PlaceHold(ctx context.Context, ref models.EntityRef, code, actor string) (*models.LifecycleEntity, error) {
	m.placed = append(m.placed, code)
	m.lastActor = actor
	return &models.LifecycleEntity{EntityType: ref.Type, EntityID: ref.ID, ActiveHoldCodes: []string{code}}, nil
}

func (m *holdServiceMock) LiftHold(ctx context.Context, ref models.EntityRef, code, actor string) (*models.LifecycleEntity, error) {
	m.lifted = append(m.lifted, code)
	m.lastActor = actor
	return &models.LifecycleEntity{EntityType: ref.Type, EntityID: ref.ID, ActiveHoldCodes: []string{}}, nil
}

type lifecycleFixture struct {
	guard       *guardServiceMock
	transitions *transitionServiceMock
	reactor     *reactorMock
	dispatcher  *dispatcherMock
	history     *historyServiceMock
	holds       *holdServiceMock
	router      *gin.Engine
}

func newLifecycleFixture(claims *models.JWTClaims) *lifecycleFixture {
	gin.SetMode(gin.TestMode)
	f := &lifecycleFixture{
		guard:       &guardServiceMock{},
		transitions: &transitionServiceMock{},
		reactor:     &reactorMock{},
		dispatcher:  &dispatcherMock{},
		history:     &historyServiceMock{},
		holds:       &holdServiceMock{},
	}
	h := NewLifecycleHandler(f.guard, f.transitions, f.reactor, f.dispatcher, f.history, f.holds)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	})
	g := r.Group("/lifecycle/:entityType/:entityId")
	g.GET("/actions", h.ListActions)
	g.GET("/actions/:action", h.CheckAction)
	g.GET("/transitions", h.ListTransitions)
	g.POST("/transitions", h.ApplyTransition)
	g.POST("/milestones", h.CrossMilestone)
	g.GET("/history", h.History)
	g.GET("/history/export", h.ExportHistory)
	g.GET("/pending-actions", h.PendingActions)
	g.PUT("/holds/:holdCode", h.PlaceHold)
	g.DELETE("/holds/:holdCode", h.LiftHold)
	f.router = r
	return f
}

func (f *lifecycleFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

var registrar = &models.JWTClaims{UserID: "registrar-1", Role: models.RoleRegistrar}

func TestLifecycleHandlerCheckAction(t *testing.T) {
	f := newLifecycleFixture(registrar)
	f.guard.allowed = true

	w := f.do(http.MethodGet, "/lifecycle/Student/s-1/actions/REGISTER", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EntityRef{Type: "student", ID: "s-1"}, f.guard.lastRef)
	assert.Equal(t, "REGISTER", f.guard.lastAction)

	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["allowed"])
}

func TestLifecycleHandlerRejectsUnknownEntityType(t *testing.T) {
	f := newLifecycleFixture(registrar)

	w := f.do(http.MethodGet, "/lifecycle/course/c-1/actions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLifecycleHandlerGuardErrorMapsStatus(t *testing.T) {
	f := newLifecycleFixture(registrar)
	f.guard.err = appErrors.ErrCatalogUnavailable

	w := f.do(http.MethodGet, "/lifecycle/student/s-1/actions/REGISTER", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "CATALOG_UNAVAILABLE", w.Header().Get("X-Error-Code"))
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "CATALOG_UNAVAILABLE", errBody["code"])
}

func TestLifecycleHandlerApplyTransitionUsesTokenActor(t *testing.T) {
	f := newLifecycleFixture(registrar)

	w := f.do(http.MethodPost, "/lifecycle/application/app-1/transitions", `{"triggerCode":"TRVF","notes":"documents ok"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "registrar-1", f.transitions.lastReq.ActorID)
	assert.Equal(t, "TRVF", f.transitions.lastReq.TriggerCode)
	assert.Equal(t, models.EntityRef{Type: "application", ID: "app-1"}, f.transitions.lastReq.Entity)
}

func TestLifecycleHandlerApplyTransitionErrors(t *testing.T) {
	f := newLifecycleFixture(nil)
	w := f.do(http.MethodPost, "/lifecycle/application/app-1/transitions", `{"triggerCode":"TRVF"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f = newLifecycleFixture(registrar)
	w = f.do(http.MethodPost, "/lifecycle/application/app-1/transitions", `{"triggerCode":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.transitions.err = appErrors.Clone(appErrors.ErrNoSuchTransition, "no transition from APSB with trigger TRAD")
	w = f.do(http.MethodPost, "/lifecycle/application/app-1/transitions", `{"triggerCode":"TRAD"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	f.transitions.err = appErrors.ErrConcurrentModification
	w = f.do(http.MethodPost, "/lifecycle/application/app-1/transitions", `{"triggerCode":"TRVF"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLifecycleHandlerCrossMilestone(t *testing.T) {
	f := newLifecycleFixture(registrar)

	w := f.do(http.MethodPost, "/lifecycle/student/s-1/milestones", `{"milestoneCode":"PM50"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PM50", f.reactor.lastCode)

	w = f.do(http.MethodPost, "/lifecycle/student/s-1/milestones?async=true", `{"milestoneCode":"PM100"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, "PM100", f.dispatcher.events[0].MilestoneCode)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["jobId"])

	w = f.do(http.MethodPost, "/lifecycle/student/s-1/milestones", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLifecycleHandlerCrossMilestoneWithoutDispatcher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewLifecycleHandler(&guardServiceMock{}, &transitionServiceMock{}, &reactorMock{}, nil, &historyServiceMock{}, &holdServiceMock{})
	r := gin.New()
	r.POST("/lifecycle/:entityType/:entityId/milestones", h.CrossMilestone)

	req := httptest.NewRequest(http.MethodPost, "/lifecycle/student/s-1/milestones?async=1", bytes.NewBufferString(`{"milestoneCode":"PM50"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLifecycleHandlerHistory(t *testing.T) {
	f := newLifecycleFixture(registrar)

	w := f.do(http.MethodGet, "/lifecycle/student/s-1/history?page=2&pageSize=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.HistoryFilter{Page: 2, PageSize: 5}, f.history.lastFilter)
	pagination := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["total_count"])

	w = f.do(http.MethodGet, "/lifecycle/student/s-1/history/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", f.history.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="student-s-1-history.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = f.do(http.MethodGet, "/lifecycle/student/s-1/pending-actions", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLifecycleHandlerHolds(t *testing.T) {
	f := newLifecycleFixture(&models.JWTClaims{UserID: "bursar", Role: models.RoleFinance})

	w := f.do(http.MethodPut, "/lifecycle/student/s-1/holds/HOLD_BAL", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"HOLD_BAL"}, f.holds.placed)
	assert.Equal(t, "bursar", f.holds.lastActor)

	w = f.do(http.MethodDelete, "/lifecycle/student/s-1/holds/HOLD_BAL", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"HOLD_BAL"}, f.holds.lifted)
}
