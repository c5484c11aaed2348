package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var ErrMediaDeleteFailed = errors.New("media asset deletion failed")

// MediaService fronts the Cloudinary CDN: it signs direct client uploads
// and destroys assets (avatars, chat images) server-side.
type MediaService struct {
	cld       *cloudinary.Cloudinary
	cloudName string
	apiKey    string
	apiSecret string
	folder    string
}

func NewMediaService(cloudName, apiKey, apiSecret, folder string) (*MediaService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("initializing cloudinary: %w", err)
	}
	return &MediaService{
		cld:       cld,
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		folder:    folder,
	}, nil
}

// UploadParams is what a client needs to upload straight to the CDN.
type UploadParams struct {
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
	Folder    string `json:"folder,omitempty"`
}

// GenerateUploadParams signs a direct-upload request for the client.
func (s *MediaService) GenerateUploadParams() UploadParams {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	params := map[string]string{
		"timestamp": timestamp,
	}
	if s.folder != "" {
		params["folder"] = s.folder
	}

	return UploadParams{
		Timestamp: timestamp,
		Signature: s.sign(params),
		APIKey:    s.apiKey,
		CloudName: s.cloudName,
		Folder:    s.folder,
	}
}

// sign builds the Cloudinary signature: sorted key=value pairs joined with
// '&', the API secret appended, SHA-1 hex encoded.
func (s *MediaService) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}

	h := sha1.New()
	h.Write([]byte(strings.Join(parts, "&") + s.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}

// DestroyAsset deletes an uploaded image by public id and invalidates
// cached CDN copies.
func (s *MediaService) DestroyAsset(ctx context.Context, publicID string) error {
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: "image",
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaDeleteFailed, err)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("%w: %s", ErrMediaDeleteFailed, res.Result)
	}
	return nil
}
