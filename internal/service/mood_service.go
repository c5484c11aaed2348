package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMoodTextRequired = errors.New("message is required")
	ErrMoodUnavailable  = errors.New("mood detection unavailable")
)

// MoodService classifies a message's mood as a single emoji by calling an
// external model endpoint. Stateless request/response; no bearing on the
// message core's correctness.
type MoodService struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewMoodService(endpoint, apiKey string) *MoodService {
	return &MoodService{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type moodRequest struct {
	Message string `json:"message"`
}

type moodResponse struct {
	Mood string `json:"mood"`
}

// DetectMood returns one emoji for the message's mood.
func (s *MoodService) DetectMood(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrMoodTextRequired
	}
	if s.endpoint == "" {
		return "", ErrMoodUnavailable
	}

	body, err := json.Marshal(moodRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("marshaling mood request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building mood request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMoodUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrMoodUnavailable, resp.StatusCode)
	}

	var out moodResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding mood response: %w", err)
	}

	mood := strings.TrimSpace(out.Mood)
	if mood == "" {
		return "", fmt.Errorf("%w: empty classification", ErrMoodUnavailable)
	}
	return mood, nil
}
