package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/vibely/server/internal/service"
)

type MediaHandler struct {
	mediaService *service.MediaService
}

func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadSignature returns signed parameters for a direct client upload.
func (h *MediaHandler) UploadSignature(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mediaService.GenerateUploadParams())
}

// Delete destroys an uploaded asset by public id.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	publicID := r.PathValue("publicId")
	if publicID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PUBLIC_ID", "publicId is required")
		return
	}

	if err := h.mediaService.DestroyAsset(r.Context(), publicID); err != nil {
		if errors.Is(err, service.ErrMediaDeleteFailed) {
			log.Printf("ERROR delete media: %v", err)
			writeError(w, http.StatusBadGateway, "MEDIA_DELETE_FAILED", "Asset could not be deleted")
			return
		}
		log.Printf("ERROR delete media: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
