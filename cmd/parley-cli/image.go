package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/parley/internal/media"
)

// readImageDataURI loads an image file as the data URI the API accepts.
func readImageDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > media.MaxImageBytes {
		return "", media.ErrImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%s: %w", path, media.ErrUnsupportedMediaType)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
