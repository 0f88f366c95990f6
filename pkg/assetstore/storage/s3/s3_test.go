package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
)

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// fakeClient is an in-memory bucket.
type fakeClient struct {
	mu      sync.Mutex
	bucket  bool
	objects map[string]fakeObject
	puts    int
	corrupt bool
	headErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{bucket: true, objects: make(map[string]fakeObject)}
}

func (f *fakeClient) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeClient) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bucket {
		return nil, &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}
	}
	f.bucket = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.corrupt {
		data = append([]byte("garbage"), data...)
	}
	f.puts++
	f.objects[aws.ToString(in.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func newTestBackend(t *testing.T, client *fakeClient, prefix string) *Backend {
	t.Helper()
	b, err := NewWithClient(context.Background(), client, Config{Bucket: "assets", Prefix: prefix})
	require.NoError(t, err)
	return b
}

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("NilClient", func(t *testing.T) {
		_, err := NewWithClient(context.Background(), nil, Config{Bucket: "assets"})
		require.Error(t, err)
	})

	t.Run("CreateBucket", func(t *testing.T) {
		client := newFakeClient()
		client.bucket = false
		_, err := NewWithClient(context.Background(), client, Config{Bucket: "assets", CreateBucketIfNotExist: true})
		require.NoError(t, err)
		assert.True(t, client.bucket)
	})

	t.Run("BucketAlreadyOwned", func(t *testing.T) {
		client := newFakeClient()
		_, err := NewWithClient(context.Background(), client, Config{Bucket: "assets", CreateBucketIfNotExist: true})
		require.NoError(t, err)
	})
}

func TestS3Backend_PutGet(t *testing.T) {
	client := newFakeClient()
	b := newTestBackend(t, client, "project-a/")
	ctx := context.Background()
	data := []byte("s3 payload")

	d, err := b.Put(ctx, data, assetstore.PutOptions{MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, digest.SHA256().Sum(data), d)

	key := fmt.Sprintf("project-a/%s/%s", d.String()[:2], d.String()[2:])
	assert.Contains(t, client.objects, key)

	got, meta, err := b.Get(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "text/plain", meta.MimeType)
	assert.Equal(t, int64(len(data)), meta.Size)
	assert.Equal(t, assetstore.KindPrimary, meta.Kind)

	// dedup: no second upload
	d2, err := b.Put(ctx, data, assetstore.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, d, d2)
	assert.Equal(t, 1, client.puts)
}

func TestS3Backend_DerivedMetadata(t *testing.T) {
	b := newTestBackend(t, newFakeClient(), "")
	ctx := context.Background()
	parent := digest.SHA256().Sum([]byte("parent"))

	d, err := b.Put(ctx, []byte("thumb"), assetstore.PutOptions{
		MimeType:    "image/jpeg",
		Kind:        assetstore.KindThumbnail,
		DerivedFrom: parent,
		Variant:     "thumbnail_256",
	})
	require.NoError(t, err)

	rc, meta, err := b.Open(ctx, d)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, assetstore.KindThumbnail, meta.Kind)
	assert.Equal(t, parent, meta.DerivedFrom)
	assert.Equal(t, "thumbnail_256", meta.Variant)
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestS3Backend_CorruptWrite(t *testing.T) {
	client := newFakeClient()
	client.corrupt = true
	b := newTestBackend(t, client, "")

	_, err := b.Put(context.Background(), []byte("payload"), assetstore.PutOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetstore.ErrCorruptWrite))
	assert.Empty(t, client.objects, "corrupt object must be removed")
}

func TestS3Backend_DeleteAndExists(t *testing.T) {
	b := newTestBackend(t, newFakeClient(), "")
	ctx := context.Background()
	d, err := b.Put(ctx, []byte("bye"), assetstore.PutOptions{})
	require.NoError(t, err)
	assert.True(t, b.Exists(ctx, d))

	existed, err := b.Delete(ctx, d)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.False(t, b.Exists(ctx, d))

	existed, err = b.Delete(ctx, d)
	require.NoError(t, err)
	assert.False(t, existed)

	_, _, err = b.Get(ctx, d)
	assert.True(t, errors.Is(err, assetstore.ErrNotFound))
}

func TestS3Backend_HeadFailure(t *testing.T) {
	client := newFakeClient()
	b := newTestBackend(t, client, "")
	client.headErr = &smithy.GenericAPIError{Code: "AccessDenied"}
	d := digest.SHA256().Sum([]byte("x"))

	assert.False(t, b.Exists(context.Background(), d))
	_, err := b.Delete(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetstore.ErrIO))
}

func TestS3Backend_Walk(t *testing.T) {
	client := newFakeClient()
	b := newTestBackend(t, client, "p")
	ctx := context.Background()

	want := digest.NewSet()
	for i := 0; i < 3; i++ {
		d, err := b.Put(ctx, []byte(fmt.Sprintf("object-%d", i)), assetstore.PutOptions{})
		require.NoError(t, err)
		want.Add(d)
	}
	client.objects["p/readme.txt"] = fakeObject{data: []byte("x")}
	client.objects["other/ab/cd"] = fakeObject{data: []byte("x")}

	var seen []digest.Digest
	require.NoError(t, b.Walk(ctx, func(info assetstore.AssetInfo) error {
		seen = append(seen, info.Digest)
		return nil
	}))
	assert.Equal(t, want.Sorted(), seen)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}
