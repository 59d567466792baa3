package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func probe(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestHealthEndpoint(t *testing.T) {
	down := context.DeadlineExceeded
	tests := []struct {
		name    string
		checker Checker
		code    int
		want    map[string]string
	}{
		{"healthy", Checker{DBPing: probe(nil), RPCPing: probe(nil)}, http.StatusOK,
			map[string]string{"status": "ok", "db": "ok", "rpc": "ok"}},
		{"store down", Checker{DBPing: probe(down), RPCPing: probe(nil)}, http.StatusServiceUnavailable,
			map[string]string{"status": "ok", "db": "fail", "rpc": "ok"}},
		{"chain down", Checker{DBPing: probe(nil), RPCPing: probe(down)}, http.StatusServiceUnavailable,
			map[string]string{"status": "ok", "db": "ok", "rpc": "fail"}},
		{"rpc only", Checker{RPCPing: probe(down)}, http.StatusServiceUnavailable,
			map[string]string{"status": "ok", "rpc": "fail"}},
		{"no probes", Checker{}, http.StatusOK,
			map[string]string{"status": "ok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewMux(tt.checker, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil))
			if w.Code != tt.code {
				t.Errorf("status code = %d, want %d", w.Code, tt.code)
			}
			var got map[string]string
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("body = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("indexkit_dispatched_total 1\n"))
	})

	w := httptest.NewRecorder()
	NewMux(Checker{}, metrics).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "indexkit_dispatched_total 1\n" {
		t.Fatalf("unexpected metrics response %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	NewMux(Checker{}, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("metrics should not be mounted, got %d", w.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := Serve("127.0.0.1:0", NewMux(Checker{}, nil), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Shutdown(ctx, srv); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
