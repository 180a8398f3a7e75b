package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/config"
	"github.com/xiaot623/ocrflow/internal/domain"
	"github.com/xiaot623/ocrflow/internal/policy"
	"github.com/xiaot623/ocrflow/internal/service"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
	"github.com/xiaot623/ocrflow/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *service.Service) {
	t.Helper()
	cfg := &config.Config{
		Provider: config.ProviderConfig{APIKey: "key", ConversationID: "conv-fixed", Prompt: config.DefaultPrompt},
		Upload:   config.UploadConfig{MaxBytes: 1024, AcceptedMediaTypes: config.DefaultAcceptedMediaTypes()},
		Timing:   config.DefaultTiming(),
	}
	db := helpers.NewTestSQLiteStore(t)
	logs := sessionlog.NewSink(t.TempDir(), nil)
	t.Cleanup(func() { _ = logs.Close() })
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	noSleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	svc := service.New(cfg, maiagent.NewMockClient(), db, policyEngine, logs, service.WithSleepFunc(noSleep))
	return NewHandler(svc), svc
}

func submit(t *testing.T, svc *service.Service, chatbotID string) {
	t.Helper()
	_, _ = svc.ProcessDocument(context.Background(), &domain.OCRRequest{
		Document:  &domain.UploadedDocument{Data: []byte("png"), MediaType: "image/png", Filename: "a.png", Size: 3},
		ChatbotID: chatbotID,
	})
}

func get(t *testing.T, path string, handler func(echo.Context) error, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	require.NoError(t, handler(c))
	return rec
}

func TestListRuns(t *testing.T) {
	h, svc := newTestHandler(t)
	submit(t, svc, "mock-ocr")
	submit(t, svc, "")

	rec := get(t, "/v1/runs", h.ListRuns)
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Runs []domain.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Runs, 2)

	rec = get(t, "/v1/runs?status=failed", h.ListRuns)
	require.Equal(t, http.StatusOK, rec.Code)
	var failed struct {
		Runs []domain.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	require.Len(t, failed.Runs, 1)
	assert.Equal(t, domain.ErrorKindValidation, failed.Runs[0].ErrorKind)

	rec = get(t, "/v1/runs?status=bogus", h.ListRuns)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunAndEvents(t *testing.T) {
	h, svc := newTestHandler(t)
	submit(t, svc, "mock-ocr")

	runs, err := svc.ListRuns(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	runID := runs[0].RunID

	rec := get(t, "/v1/runs/"+runID, h.GetRun, "run_id", runID)
	require.Equal(t, http.StatusOK, rec.Code)
	var run domain.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, domain.RunStatusDone, run.Status)

	rec = get(t, "/v1/runs/missing", h.GetRun, "run_id", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, "/v1/runs/"+runID+"/events?types=poll_attempt", h.GetRunEvents, "run_id", runID)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	for _, ev := range resp.Events {
		assert.Equal(t, domain.EventTypePollAttempt, ev.Type)
	}
}
