package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockHTTPRecorder struct {
	statuses  []int
	latencies []time.Duration
}

func (m *mockHTTPRecorder) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockHTTPRecorder) RecordRequestLatency(duration time.Duration) {
	m.latencies = append(m.latencies, duration)
}

func TestMetricsMiddleware_RecordsStatusAndLatency(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name:       "implicit 200",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "nothing written",
			handler:    func(w http.ResponseWriter, r *http.Request) {},
			wantStatus: http.StatusOK,
		},
		{
			name:       "redirect",
			handler:    func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/", http.StatusTemporaryRedirect) },
			wantStatus: http.StatusTemporaryRedirect,
		},
		{
			name:       "server error",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockHTTPRecorder{}
			handler := NewMetricsMiddleware(rec)(tt.handler)

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/task/t1", nil))

			if len(rec.statuses) != 1 || rec.statuses[0] != tt.wantStatus {
				t.Errorf("statuses = %v, want [%d]", rec.statuses, tt.wantStatus)
			}
			if len(rec.latencies) != 1 || rec.latencies[0] < 0 {
				t.Errorf("latencies = %v, want one non-negative value", rec.latencies)
			}
		})
	}
}
