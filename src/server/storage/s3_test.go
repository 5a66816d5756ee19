package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	mu      sync.Mutex
	objects map[string][]byte
	pages   int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2PagesWithContext returns one key per page to exercise paging.
func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	for i, k := range keys {
		f.pages++
		page := &s3.ListObjectsV2Output{Contents: []*s3.Object{{Key: aws.String(k)}}}
		if !fn(page, i == len(keys)-1) {
			break
		}
	}
	return nil
}

func TestS3StorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	st := NewS3StorageWithClient(fake, "bucket", "projects")

	require.NoError(t, st.WriteFile(ctx, "proj/a.ts", []byte("let x=1")))
	require.NoError(t, st.WriteFile(ctx, "proj/src/b.ts", []byte("export {}")))
	require.NoError(t, st.WriteFile(ctx, "other/c.go", []byte("package c")))
	fake.objects["projects/proj/dir/"] = nil

	assert.Contains(t, fake.objects, "projects/proj/a.ts")

	data, err := st.ReadFile(ctx, "proj/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "let x=1", string(data))

	files, err := st.ListFiles(ctx, "proj/")
	require.NoError(t, err)
	assert.Equal(t, []string{"proj/a.ts", "proj/src/b.ts"}, files)
	assert.GreaterOrEqual(t, fake.pages, 3)

	require.NoError(t, st.DeleteFile(ctx, "proj/a.ts"))
	_, err = st.ReadFile(ctx, "proj/a.ts")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(S3Config{Region: "us-east-1"})
	assert.Error(t, err)

	st, err := NewS3Storage(S3Config{Bucket: "b", Region: "us-east-1", Endpoint: "http://localhost:9000", AccessKey: "k", SecretKey: "s", PathStyle: true})
	require.NoError(t, err)
	assert.Equal(t, "b", st.bucket)
}
