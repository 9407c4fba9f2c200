// Package media stores message images and profile pictures behind a single Uploader port.
package media

import "context"

// Uploader stores image data URIs and reports on the health of the backing host.
type Uploader interface {
	Upload(ctx context.Context, dataURI string) (string, error)
	Ping(ctx context.Context) error
}

var (
	_ Uploader = (*DiskUploader)(nil)
	_ Uploader = (*CloudinaryUploader)(nil)
)
