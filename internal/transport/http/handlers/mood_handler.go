package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vibely/server/internal/service"
)

type MoodHandler struct {
	moodService *service.MoodService
}

func NewMoodHandler(moodService *service.MoodService) *MoodHandler {
	return &MoodHandler{moodService: moodService}
}

// Detect classifies the mood of a message as a single emoji.
func (h *MoodHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	mood, err := h.moodService.DetectMood(r.Context(), input.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMoodTextRequired):
			writeError(w, http.StatusBadRequest, "MISSING_MESSAGE", "Message is required")
		case errors.Is(err, service.ErrMoodUnavailable):
			log.Printf("ERROR detect mood: %v", err)
			writeError(w, http.StatusBadGateway, "MOOD_UNAVAILABLE", "Mood detection is unavailable")
		default:
			log.Printf("ERROR detect mood: %v", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"mood": mood})
}
