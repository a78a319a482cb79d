package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/loanops/dealbridge/internal/clients/hubspot"
)

type fakeUpdater struct {
	err    error
	called bool
	dealID string
	props  map[string]string
}

func (f *fakeUpdater) UpdateDealProperties(_ context.Context, dealID string, props map[string]string) error {
	f.called = true
	f.dealID = dealID
	f.props = props
	return f.err
}

func newTestRouter(updater *fakeUpdater) chi.Router {
	handler := NewHandler(updater, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/hubspot", handler.RegisterRoutes)
	return r
}

func post(r chi.Router, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hubspot/update-deal-rates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleUpdateDealRates_Success(t *testing.T) {
	updater := &fakeUpdater{}
	rec := post(newTestRouter(updater), `{"dealId":"12345","properties":{"loan_rate":"7.25","rate_index":"SOFR"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, "12345", updater.dealID)
	assert.Equal(t, map[string]string{"loan_rate": "7.25", "rate_index": "SOFR"}, updater.props)
}

func TestHandleUpdateDealRates_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing dealId", `{"properties":{"loan_rate":"7.25"}}`},
		{"missing properties", `{"dealId":"12345"}`},
		{"empty properties", `{"dealId":"12345","properties":{}}`},
		{"malformed body", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &fakeUpdater{}
			rec := post(newTestRouter(updater), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, updater.called, "validation failures must not reach upstream")
		})
	}
}

func TestHandleUpdateDealRates_UpstreamStatusPassthrough(t *testing.T) {
	updater := &fakeUpdater{err: &hubspot.APIError{
		StatusCode: 403,
		Category:   "MISSING_SCOPES",
		Message:    "This app hasn't been granted all required scopes",
	}}
	rec := post(newTestRouter(updater), `{"dealId":"12345","properties":{"loan_rate":"7.25"}}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_SCOPES")
}
