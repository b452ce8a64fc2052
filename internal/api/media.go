package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/mwarrick/digital-business-card-sub000/internal/models"
	"github.com/tidwall/gjson"
)

const mediaUploadEndpoint = "/api/media/upload"

// UploadImage uploads the image for slot of the card with remoteID and
// returns the server path to store on the card.
func (c *Client) UploadImage(ctx context.Context, remoteID string, slot models.ImageSlot, filename string, content []byte) (string, error) {
	mediaType, ok := mediaTypes[slot]
	if !ok {
		return "", fmt.Errorf("uploading image: unknown slot %q", slot)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("business_card_id", remoteID); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	if err := w.WriteField("media_type", mediaType); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	data, err := c.do(ctx, request{
		method:      http.MethodPost,
		endpoint:    mediaUploadEndpoint,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s image for card %s: %w", slot, remoteID, err)
	}

	path := firstString(data, "path", "url", "filename")
	if path == "" {
		return "", &DecodeError{Endpoint: mediaUploadEndpoint, Err: errors.New("response has no path")}
	}

	return path, nil
}

func firstString(data gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := data.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}

	return ""
}
