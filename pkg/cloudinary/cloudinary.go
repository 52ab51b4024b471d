package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

var ErrNotConfigured = errors.New("image uploads are not configured")

// Client uploads payment proofs and chat images.
type Client interface {
	UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error)
	Delete(ctx context.Context, publicID string) error
}

// Screenshots keep enough resolution for a UTR to stay legible.
const (
	ImageWidth = 1280
	ThumbWidth = 240
)

const imageEager = "q_auto,f_auto,w_240,c_limit"

var eagerAsyncFalse = false

// BuildImageURL returns a delivery URL for an existing public id resized to width.
func BuildImageURL(cloudName, publicID string, width int) string {
	if width <= 0 {
		width = ImageWidth
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/q_auto,f_auto,w_%d,c_limit/%s",
		cloudName, width, publicID)
}

type clientImpl struct {
	cloudName string
	uploader  *uploader.API
}

// UploadImage uploads an image and returns its secure URL plus a thumbnail.
func (c *clientImpl) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "image",
		Eager:        imageEager,
		EagerAsync:   &eagerAsyncFalse,
	})
	if err != nil {
		return "", "", err
	}
	if result.Error.Message != "" {
		return "", "", errors.New(result.Error.Message)
	}
	url = result.SecureURL
	if len(result.Eager) > 0 {
		thumbnailURL = result.Eager[0].SecureURL
	}
	if thumbnailURL == "" {
		thumbnailURL = BuildImageURL(c.cloudName, result.PublicID, ThumbWidth)
	}
	return url, thumbnailURL, nil
}

func (c *clientImpl) Delete(ctx context.Context, publicID string) error {
	_, err := c.uploader.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	return err
}

// disabled is used when no credentials are configured; uploads fail, pre-uploaded URLs still work.
type disabled struct{}

func (disabled) UploadImage(context.Context, io.Reader, string, string) (string, string, error) {
	return "", "", ErrNotConfigured
}

func (disabled) Delete(context.Context, string) error { return ErrNotConfigured }

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
// Empty credentials yield a client whose uploads return ErrNotConfigured.
func NewClientFromParams(cloudName, apiKey, apiSecret string) (Client, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return disabled{}, nil
	}
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{
		cloudName: cloudName,
		uploader:  up,
	}, nil
}
