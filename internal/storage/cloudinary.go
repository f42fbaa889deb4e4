package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStore хранит файлы в Cloudinary. Изображения загружаются как image,
// остальные файлы (PDF) как raw.
type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryStore создаёт хранилище по строке CLOUDINARY_URL.
func NewCloudinaryStore(cloudinaryURL string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStore{cld: cld}, nil
}

func resourceType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg", ".png":
		return "image"
	}
	return "raw"
}

// publicID для изображений не содержит расширения, для raw-файлов содержит.
func publicID(p string) string {
	if resourceType(p) == "image" {
		return strings.TrimSuffix(p, path.Ext(p))
	}
	return p
}

// Put загружает файл.
func (s *CloudinaryStore) Put(ctx context.Context, p string, content []byte, contentType string) error {
	c, err := cleanPath(p)
	if err != nil {
		return err
	}
	overwrite := true
	_, err = s.cld.Upload.Upload(ctx, bytes.NewReader(content), uploader.UploadParams{
		PublicID:     publicID(c),
		ResourceType: resourceType(c),
		Overwrite:    &overwrite,
	})
	if err != nil {
		return fmt.Errorf("cloudinary upload %s: %w", c, err)
	}
	return nil
}

// URL возвращает ссылку на файл.
func (s *CloudinaryStore) URL(ctx context.Context, p string) (string, error) {
	c, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	if resourceType(c) == "image" {
		img, err := s.cld.Image(publicID(c))
		if err != nil {
			return "", fmt.Errorf("cloudinary image %s: %w", c, err)
		}
		return img.String()
	}
	f, err := s.cld.File(publicID(c))
	if err != nil {
		return "", fmt.Errorf("cloudinary file %s: %w", c, err)
	}
	return f.String()
}

// Delete удаляет файл.
func (s *CloudinaryStore) Delete(ctx context.Context, p string) error {
	c, err := cleanPath(p)
	if err != nil {
		return err
	}
	invalidate := true
	_, err = s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID(c),
		ResourceType: resourceType(c),
		Invalidate:   &invalidate,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s: %w", c, err)
	}
	return nil
}
