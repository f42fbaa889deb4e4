package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root, "http://localhost:8080/files/")
	require.NoError(t, err)
	ctx := context.Background()

	p := "orders/10/abc/01-report.pdf"
	require.NoError(t, s.Put(ctx, p, []byte("%PDF-1.4"), "application/pdf"))

	content, err := os.ReadFile(filepath.Join(root, "orders", "10", "abc", "01-report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(content))

	url, err := s.URL(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/orders/10/abc/01-report.pdf", url)

	require.NoError(t, s.Delete(ctx, p))
	require.NoError(t, s.Delete(ctx, p))
	_, err = os.Stat(filepath.Join(root, "orders", "10", "abc", "01-report.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestDirStore_RejectsEscapingPaths(t *testing.T) {
	s, err := NewDirStore(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)

	for _, p := range []string{"../secret", "orders/../../x", "", "orders//x"} {
		assert.ErrorIs(t, s.Put(context.Background(), p, []byte("x"), ""), ErrInvalidPath, p)
	}
}

func TestCloudinaryNaming(t *testing.T) {
	tests := []struct {
		path     string
		resource string
		id       string
	}{
		{"orders/1/x/01-a.pdf", "raw", "orders/1/x/01-a.pdf"},
		{"orders/1/x/02-b.jpg", "image", "orders/1/x/02-b"},
		{"orders/1/x/03-c.PNG", "image", "orders/1/x/03-c"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.resource, resourceType(tt.path))
			assert.Equal(t, tt.id, publicID(tt.path))
		})
	}
}
