package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEventsRouter(dispatcher *mocks.MockDispatcher) chi.Router {
	logger := testLogger()
	handler := NewEventsHandler(dispatcher, NewErrorHandler(logger), logger)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleDispatch_AcceptsAndReturnsResult(t *testing.T) {
	tenantID := uuid.New()
	dispatcher := mocks.NewMockDispatcher()
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(e *domain.Event) bool {
		return e.Kind == domain.EventMessageCreated && e.TenantID == tenantID && e.ConversationID == "c1"
	})).Return(domain.DispatchResult{
		Targeted:  []domain.Topic{domain.TenantTopic(tenantID.String()), domain.ConversationTopic("c1")},
		Delivered: 3,
	}, nil)

	router := newEventsRouter(dispatcher)
	rec := postJSON(t, router, "/events", map[string]any{
		"kind":           "message.created",
		"tenantId":       tenantID.String(),
		"conversationId": "c1",
		"payload":        map[string]string{"messageId": "m1"},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result domain.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Delivered)
	assert.Len(t, result.Targeted, 2)
	dispatcher.AssertExpectations(t)
}

func TestHandleDispatch_UnroutableEventReturns422(t *testing.T) {
	dispatcher := mocks.NewMockDispatcher()
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).
		Return(domain.DispatchResult{}, fmt.Errorf("%w: no route for kind billing.invoice_paid", apperrors.ErrUnroutableEvent))

	router := newEventsRouter(dispatcher)
	rec := postJSON(t, router, "/events", map[string]any{
		"kind":     "billing.invoice_paid",
		"tenantId": uuid.NewString(),
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UNROUTABLE_EVENT", resp.Code)
}

func TestHandleDispatch_ValidatesTheEvent(t *testing.T) {
	dispatcher := mocks.NewMockDispatcher()
	router := newEventsRouter(dispatcher)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing kind", map[string]any{"tenantId": uuid.NewString()}},
		{"missing tenant", map[string]any{"kind": "message.created"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, "/events", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			var resp ValidationErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		})
	}

	dispatcher.AssertNotCalled(t, "Dispatch")
}

func TestHandleDispatch_RejectsMalformedBody(t *testing.T) {
	dispatcher := mocks.NewMockDispatcher()
	router := newEventsRouter(dispatcher)

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	dispatcher.AssertNotCalled(t, "Dispatch")
}
