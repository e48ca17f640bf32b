package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAPIChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/csrf/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"detail": "CSRF cookie set"}`))
	}))
	defer server.Close()

	checker := NewAPIChecker(server.URL+"/api/", nil)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}

	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
}

func TestAPIChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("error"))
	}))
	defer server.Close()

	checker := NewAPIChecker(server.URL, nil)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy, got healthy: %s", result.Message)
	}
}

func TestAPIChecker_SendsNoCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.Cookies()) > 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "t"})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewAPIChecker(server.URL, nil)
	for i := 0; i < 2; i++ {
		if result := checker.Check(context.Background()); !result.Healthy {
			t.Fatalf("check %d: expected healthy, got %s", i, result.Message)
		}
	}
}

func TestAPIChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent) // 204
	}))
	defer server.Close()

	checker := NewAPIChecker(server.URL, nil).WithStatusRange(200, 200)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy for 204 outside 200-200, got healthy: %s", result.Message)
	}
}

func TestAPIChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewAPIChecker(server.URL, nil).WithTimeout(50 * time.Millisecond)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy due to timeout, got healthy: %s", result.Message)
	}
}

func TestAPIChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewAPIChecker(server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := checker.Check(ctx)

	if result.Healthy {
		t.Errorf("Expected unhealthy due to cancelled context, got healthy: %s", result.Message)
	}
}

func TestAPIChecker_Type(t *testing.T) {
	checker := NewAPIChecker("http://localhost:8000/api", nil)
	if checker.Type() != CheckTypeAPI {
		t.Errorf("Expected type %s, got %s", CheckTypeAPI, checker.Type())
	}
	if checker.URL != "http://localhost:8000/api/auth/csrf/" {
		t.Errorf("Unexpected probe URL %s", checker.URL)
	}
}
