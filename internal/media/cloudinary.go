package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	cldconfig "github.com/cloudinary/cloudinary-go/v2/config"
)

// CloudinaryConfig configures a CloudinaryUploader.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// APIBaseURL overrides the SDK's upload prefix (https://api.cloudinary.com).
	APIBaseURL string
	Folder     string
}

// CloudinaryUploader stores images with the Cloudinary SDK's signed upload API.
type CloudinaryUploader struct {
	client *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cfg CloudinaryConfig) (*CloudinaryUploader, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("media: cloudinary credentials required")
	}
	configuration, err := cldconfig.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("media: cloudinary config: %w", err)
	}
	if baseURL := strings.TrimRight(cfg.APIBaseURL, "/"); baseURL != "" {
		configuration.API.UploadPrefix = baseURL
	}
	client, err := cloudinary.NewFromConfiguration(*configuration)
	if err != nil {
		return nil, fmt.Errorf("media: cloudinary client: %w", err)
	}
	return &CloudinaryUploader{client: client, folder: cfg.Folder}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, dataURI string) (string, error) {
	if _, err := ParseImageDataURI(dataURI); err != nil {
		return "", err
	}

	result, err := u.client.Upload.Upload(ctx, strings.TrimSpace(dataURI), uploader.UploadParams{
		Folder: u.folder,
	})
	if err != nil {
		return "", fmt.Errorf("media: cloudinary upload: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("media: cloudinary upload returned no result")
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("media: cloudinary upload failed: %s", result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("media: cloudinary upload returned no secure_url")
	}
	return result.SecureURL, nil
}

// Ping calls the admin ping endpoint, which validates the credentials.
func (u *CloudinaryUploader) Ping(ctx context.Context) error {
	result, err := u.client.Admin.Ping(ctx)
	if err != nil {
		return fmt.Errorf("media: cloudinary ping: %w", err)
	}
	if result == nil {
		return fmt.Errorf("media: cloudinary ping returned no result")
	}
	if result.Error.Message != "" {
		return fmt.Errorf("media: cloudinary ping: %s", result.Error.Message)
	}
	if result.Status != "ok" {
		return fmt.Errorf("media: cloudinary ping returned status %q", result.Status)
	}
	return nil
}
