package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/refsource"
)

// newTestSource connects to TEST_DATABASE_URL and skips when it is unset.
func newTestSource(t *testing.T, opts ...refsource.Option) *Source {
	t.Helper()
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	src, err := Open(context.Background(), connString, opts...)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { src.Close() })
	return src
}

func TestLiveDigests(t *testing.T) {
	src := newTestSource(t, refsource.WithQuery("SELECT digest FROM assetstore_test_refs"))
	ctx := context.Background()

	_, err := src.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS assetstore_test_refs (digest TEXT)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		src.pool.Exec(context.Background(), `DROP TABLE IF EXISTS assetstore_test_refs`)
	})

	img := digest.SHA256().Sum([]byte("image"))
	_, err = src.pool.Exec(ctx, `TRUNCATE assetstore_test_refs`)
	require.NoError(t, err)
	_, err = src.pool.Exec(ctx, `INSERT INTO assetstore_test_refs (digest) VALUES ($1), (NULL), ('not-a-digest')`, img.String())
	require.NoError(t, err)

	live, err := src.LiveDigests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []digest.Digest{img}, live.Sorted())
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}
