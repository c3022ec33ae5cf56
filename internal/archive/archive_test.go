package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-job-crawler/internal/clock/system"
	"github.com/JakeFAU/sitemap-job-crawler/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-job-crawler/internal/storage/memory"
)

func TestObjectPath(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 7, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	got := ObjectPath("sitemaps", at, "run-1", "abc")
	require.Equal(t, "sitemaps/2024/03/08/run-1-abc.xml", got)
}

func TestArchiverStore(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	clk := system.NewManual(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	a := New(blobs, &sha256.Hasher{Length: 8}, clk, "", nil)

	uri, err := a.Store(context.Background(), "run-9", []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "memory://sitemaps/2024/01/02/run-9-b94d27b9.xml", uri)

	data, contentType, ok := blobs.Object("sitemaps/2024/01/02/run-9-b94d27b9.xml")
	require.True(t, ok)
	require.Equal(t, "hello world", string(data))
	require.Equal(t, "application/xml", contentType)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestArchiverStoreError(t *testing.T) {
	t.Parallel()

	a := New(failingStore{}, sha256.New(), system.New(), "snapshots/", nil)
	_, err := a.Store(context.Background(), "run", []byte("x"))
	require.ErrorContains(t, err, "archive sitemap")
}
