package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/parley/internal/ids"
)

// PublicPathPrefix is the HTTP path under which disk uploads are served.
const PublicPathPrefix = "/media"

// DiskUploaderConfig configures a DiskUploader.
type DiskUploaderConfig struct {
	Directory     string
	PublicBaseURL string
	IDProvider    ids.Provider
}

// DiskUploader writes uploads into a local directory served by the API under PublicPathPrefix.
type DiskUploader struct {
	directory     string
	publicBaseURL string
	idProvider    ids.Provider
}

// NewDiskUploader creates the directory if needed and returns the uploader.
func NewDiskUploader(cfg DiskUploaderConfig) (*DiskUploader, error) {
	directory := strings.TrimSpace(cfg.Directory)
	if directory == "" {
		return nil, fmt.Errorf("media: directory required")
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("media: create directory: %w", err)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	return &DiskUploader{
		directory:     directory,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		idProvider:    idProvider,
	}, nil
}

// Directory returns the directory uploads are written to.
func (u *DiskUploader) Directory() string {
	return u.directory
}

func (u *DiskUploader) Upload(ctx context.Context, dataURI string) (string, error) {
	image, err := ParseImageDataURI(dataURI)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objectID, err := u.idProvider.NewID()
	if err != nil {
		return "", err
	}
	name := objectID + image.Extension()
	if err := os.WriteFile(filepath.Join(u.directory, name), image.Data, 0o644); err != nil {
		return "", fmt.Errorf("media: write %s: %w", name, err)
	}
	return u.publicBaseURL + PublicPathPrefix + "/" + name, nil
}

func (u *DiskUploader) Ping(context.Context) error {
	info, err := os.Stat(u.directory)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("media: %s is not a directory", u.directory)
	}
	return nil
}
