package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MaxImageBytes bounds a decoded image upload.
const MaxImageBytes = 5 * 1024 * 1024

var (
	// ErrInvalidDataURI indicates a payload that is not a base64 data URI.
	ErrInvalidDataURI = errors.New("media: invalid data uri")
	// ErrUnsupportedMediaType indicates a data URI that is not one of the accepted raster image types.
	ErrUnsupportedMediaType = errors.New("media: only png, jpeg, gif, webp and avif images are supported")
	// ErrImageTooLarge indicates an image above MaxImageBytes.
	ErrImageTooLarge = errors.New("media: image exceeds 5MB")
)

// imageExtensions lists the accepted content types. Scriptable formats such as SVG are excluded
// because disk uploads are served from the API origin.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
}

// Image is a decoded data URI.
type Image struct {
	ContentType string
	Data        []byte
}

// Extension returns the file extension for the image content type.
func (i Image) Extension() string {
	return imageExtensions[i.ContentType]
}

// ParseImageDataURI decodes "data:image/<type>;base64,<payload>" for the accepted raster types.
func ParseImageDataURI(raw string) (Image, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "data:") {
		return Image{}, ErrInvalidDataURI
	}
	header, payload, found := strings.Cut(strings.TrimPrefix(trimmed, "data:"), ",")
	if !found {
		return Image{}, ErrInvalidDataURI
	}
	contentType, encoding, found := strings.Cut(header, ";")
	if !found || !strings.EqualFold(encoding, "base64") {
		return Image{}, fmt.Errorf("%w: base64 encoding required", ErrInvalidDataURI)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := imageExtensions[contentType]; !ok {
		return Image{}, ErrUnsupportedMediaType
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+3 {
		return Image{}, ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) > MaxImageBytes {
		return Image{}, ErrImageTooLarge
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}
	return Image{ContentType: contentType, Data: data}, nil
}

// IsClientError reports whether err was caused by the uploaded payload rather than the provider.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDataURI) || errors.Is(err, ErrUnsupportedMediaType) || errors.Is(err, ErrImageTooLarge)
}
