package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectMood(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Message != "what a great day" {
			t.Errorf("message = %q", req.Message)
		}
		json.NewEncoder(w).Encode(map[string]string{"mood": "😊"})
	}))
	defer srv.Close()

	svc := NewMoodService(srv.URL, "secret-key")
	mood, err := svc.DetectMood(context.Background(), "what a great day")
	if err != nil {
		t.Fatalf("DetectMood = %v", err)
	}
	if mood != "😊" {
		t.Errorf("mood = %q", mood)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestDetectMoodEmptyMessage(t *testing.T) {
	svc := NewMoodService("http://unused", "")
	if _, err := svc.DetectMood(context.Background(), "   "); !errors.Is(err, ErrMoodTextRequired) {
		t.Errorf("DetectMood = %v, want ErrMoodTextRequired", err)
	}
}

func TestDetectMoodNotConfigured(t *testing.T) {
	svc := NewMoodService("", "")
	if _, err := svc.DetectMood(context.Background(), "hey"); !errors.Is(err, ErrMoodUnavailable) {
		t.Errorf("DetectMood = %v, want ErrMoodUnavailable", err)
	}
}

func TestDetectMoodUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewMoodService(srv.URL, "")
	if _, err := svc.DetectMood(context.Background(), "hey"); !errors.Is(err, ErrMoodUnavailable) {
		t.Errorf("DetectMood = %v, want ErrMoodUnavailable", err)
	}
}

func TestDetectMoodEmptyClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"mood": "  "})
	}))
	defer srv.Close()

	svc := NewMoodService(srv.URL, "")
	if _, err := svc.DetectMood(context.Background(), "hey"); !errors.Is(err, ErrMoodUnavailable) {
		t.Errorf("DetectMood = %v, want ErrMoodUnavailable", err)
	}
}
