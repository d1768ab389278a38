package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
	apperrors "github.com/solvahq/realtime-gateway/internal/core/errors"
	"github.com/solvahq/realtime-gateway/internal/core/mocks"
)

func newSessionRouter(recorder *mocks.MockWatermarkRecorder) chi.Router {
	logger := testLogger()
	handler := NewSessionHandler(recorder, NewErrorHandler(logger), logger)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func watermarkPath(tenantID uuid.UUID, conversationID, direction string) string {
	return fmt.Sprintf("/tenants/%s/conversations/%s/watermarks/%s", tenantID, conversationID, direction)
}

func TestHandleRecordWatermark_InboundReturns204(t *testing.T) {
	tenantID := uuid.New()
	recorder := mocks.NewMockWatermarkRecorder()
	recorder.On("RecordInbound", mock.Anything, tenantID, "c1", "m1", "whatsapp").Return(nil)

	router := newSessionRouter(recorder)
	rec := postJSON(t, router, watermarkPath(tenantID, "c1", "inbound"), map[string]string{
		"messageId": "m1",
		"channel":   "whatsapp",
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	recorder.AssertExpectations(t)
}

func TestHandleRecordWatermark_OutboundReturns204(t *testing.T) {
	tenantID := uuid.New()
	recorder := mocks.NewMockWatermarkRecorder()
	recorder.On("RecordOutbound", mock.Anything, tenantID, "c1", "m2", "").Return(nil)

	router := newSessionRouter(recorder)
	rec := postJSON(t, router, watermarkPath(tenantID, "c1", "outbound"), map[string]string{
		"messageId": "m2",
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	recorder.AssertExpectations(t)
}

func TestHandleRecordWatermark_StoreOutageFailsSoft(t *testing.T) {
	tenantID := uuid.New()
	recorder := mocks.NewMockWatermarkRecorder()
	recorder.On("RecordInbound", mock.Anything, tenantID, "c1", "m1", "").
		Return(fmt.Errorf("%w: connection refused", apperrors.ErrSessionStoreUnavailable))

	router := newSessionRouter(recorder)
	rec := postJSON(t, router, watermarkPath(tenantID, "c1", "inbound"), map[string]string{
		"messageId": "m1",
	})

	// The producer's message flow must not fail on a watermark outage.
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["recorded"])
}

func TestHandleRecordWatermark_ValidatesTheRequest(t *testing.T) {
	tenantID := uuid.New()
	recorder := mocks.NewMockWatermarkRecorder()
	router := newSessionRouter(recorder)

	t.Run("unknown direction", func(t *testing.T) {
		rec := postJSON(t, router, watermarkPath(tenantID, "c1", "sideways"), map[string]string{
			"messageId": "m1",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp ValidationErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Fields, "direction")
	})

	t.Run("missing message id", func(t *testing.T) {
		rec := postJSON(t, router, watermarkPath(tenantID, "c1", "inbound"), map[string]string{})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp ValidationErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Fields, "messageId")
	})

	t.Run("malformed tenant id", func(t *testing.T) {
		rec := postJSON(t, router, "/tenants/not-a-uuid/conversations/c1/watermarks/inbound", map[string]string{
			"messageId": "m1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	recorder.AssertNotCalled(t, "RecordInbound")
	recorder.AssertNotCalled(t, "RecordOutbound")
}

func TestHandleGetSession_ReturnsSnapshot(t *testing.T) {
	tenantID := uuid.New()
	at := time.Now().UTC()
	snap := domain.NewSessionSnapshot(tenantID, "c1")
	snap.MarkInbound("m-in", "whatsapp", at)

	recorder := mocks.NewMockWatermarkRecorder()
	recorder.On("Get", mock.Anything, tenantID, "c1").Return(snap, nil)

	router := newSessionRouter(recorder)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/conversations/c1/session", tenantID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "m-in", got.LastInboundMessageID)
	assert.Equal(t, "whatsapp", got.Channel)
}

func TestHandleGetSession_AbsentSnapshotReturns404(t *testing.T) {
	tenantID := uuid.New()
	recorder := mocks.NewMockWatermarkRecorder()
	recorder.On("Get", mock.Anything, tenantID, "gone").Return(nil, nil)

	router := newSessionRouter(recorder)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/conversations/gone/session", tenantID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestHandleGetSession_StoreOutageReturns503(t *testing.T) {
	tenantID := uuid.New()
	recorder := mocks.NewMockWatermarkRecorder()
	recorder.On("Get", mock.Anything, tenantID, "c1").
		Return(nil, fmt.Errorf("%w: connection refused", apperrors.ErrSessionStoreUnavailable))

	router := newSessionRouter(recorder)
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tenants/%s/conversations/c1/session", tenantID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
