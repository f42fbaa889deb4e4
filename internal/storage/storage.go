// Package storage хранит файлы заказов: в Cloudinary или в локальном каталоге.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ObjectStore описывает хранилище файлов.
type ObjectStore interface {
	Put(ctx context.Context, path string, content []byte, contentType string) error
	URL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// ErrInvalidPath возвращается для путей, выходящих за пределы хранилища.
var ErrInvalidPath = errors.New("invalid object path")

func cleanPath(p string) (string, error) {
	c := path.Clean("/" + p)[1:]
	if c == "" || c != strings.TrimPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}

// DirStore хранит файлы в локальном каталоге и отдаёт их по baseURL.
type DirStore struct {
	root    string
	baseURL string
}

// NewDirStore создаёт хранилище в каталоге root.
func NewDirStore(root, baseURL string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &DirStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Root возвращает каталог хранилища.
func (s *DirStore) Root() string { return s.root }

// Put сохраняет файл.
func (s *DirStore) Put(ctx context.Context, p string, content []byte, contentType string) error {
	c, err := cleanPath(p)
	if err != nil {
		return err
	}
	full := filepath.Join(s.root, filepath.FromSlash(c))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// URL возвращает ссылку на файл.
func (s *DirStore) URL(ctx context.Context, p string) (string, error) {
	c, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + (&url.URL{Path: c}).EscapedPath(), nil
}

// Delete удаляет файл; отсутствующий файл ошибкой не считается.
func (s *DirStore) Delete(ctx context.Context, p string) error {
	c, err := cleanPath(p)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.root, filepath.FromSlash(c)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
