package scan_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/scan"
	"github.com/tendant/assetstore/pkg/assetstore/storage/fs"
	"github.com/tendant/assetstore/pkg/assetstore/storage/memory"
)

func seed(t *testing.T, repo assetstore.Repository, n int) []digest.Digest {
	t.Helper()
	out := make([]digest.Digest, n)
	for i := range out {
		d, err := repo.Put(context.Background(), []byte(fmt.Sprintf("asset-%d", i)), assetstore.PutOptions{})
		require.NoError(t, err)
		out[i] = d
	}
	return out
}

func TestScan(t *testing.T) {
	repo := memory.New()
	ds := digest.NewSet(seed(t, repo, 5)...).Sorted()
	boom := errors.New("rejected")

	var progress []int64
	result, err := scan.New(repo, nil).Scan(context.Background(), scan.Options{
		Processor: scan.ProcessorFunc(func(ctx context.Context, info assetstore.AssetInfo) error {
			if info.Digest == ds[3] {
				return boom
			}
			return nil
		}),
		OnProgress: func(n int64) { progress = append(progress, n) },
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.TotalFound)
	assert.Equal(t, int64(4), result.TotalProcessed)
	assert.Equal(t, int64(1), result.TotalFailed)
	assert.Equal(t, int64(5*len("asset-0")), result.TotalBytes)
	assert.Equal(t, map[digest.Digest]string{ds[3]: "rejected"}, result.Failed)
	assert.Equal(t, []int64{1, 2, 3, 5}, progress)
}

func TestScan_DryRun(t *testing.T) {
	repo := memory.New()
	seed(t, repo, 3)

	result, err := scan.New(repo, nil).Scan(context.Background(), scan.Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalFound)
	assert.Equal(t, int64(3), result.TotalProcessed)

	_, err = scan.New(repo, nil).Scan(context.Background(), scan.Options{})
	assert.Error(t, err, "processor is required outside dry runs")
}

func TestScan_Cancelled(t *testing.T) {
	repo := memory.New()
	seed(t, repo, 3)
	ctx, cancel := context.WithCancel(context.Background())

	result, err := scan.New(repo, nil).ForEach(ctx, func(ctx context.Context, info assetstore.AssetInfo) error {
		cancel()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), result.TotalFailed)
}

func TestVerify(t *testing.T) {
	repo, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ds := seed(t, repo, 3)

	scanner := scan.New(repo, nil)
	result, err := scanner.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalProcessed)
	assert.Empty(t, result.Failed)

	// bit rot on disk
	require.NoError(t, os.WriteFile(repo.Path(ds[1]), []byte("tampered"), 0644))

	result, err = scanner.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalFailed)
	require.Contains(t, result.Failed, ds[1])
	assert.Contains(t, result.Failed[ds[1]], scan.ErrDigestMismatch.Error())

	assert.ErrorIs(t, scan.NewVerifier(repo).Process(context.Background(), assetstore.AssetInfo{Digest: ds[1]}), scan.ErrDigestMismatch)
	assert.NoError(t, scan.NewVerifier(repo).Process(context.Background(), assetstore.AssetInfo{Digest: ds[0]}))
}
