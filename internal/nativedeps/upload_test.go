package nativedeps

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.types = map[string]string{}
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestPublishPackages(t *testing.T) {
	layout := Layout{Root: t.TempDir()}
	writeTree(t, layout.Out(Release), map[string]string{"zlib/lib/zlib.lib": "lib"})
	writeTree(t, layout.Out(Debug), map[string]string{"zlib/lib/zlibd.lib": "lib"})
	console := NewConsole(io.Discard, false)
	for _, v := range []Variant{Release, Debug} {
		_, err := PackageVariant(layout, v, FormatZstd, console)
		require.NoError(t, err)
	}

	bucket := &fakeBucket{}
	p := &Publisher{Client: bucket, Bucket: "deps", Prefix: "/nativedeps/"}
	n, err := p.PublishPackages(context.Background(), layout.PackagesDir(), console)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	want := filepath.Join(layout.PackagesDir(), "nativedeps-debug.tar.zst")
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, data, bucket.objects["deps/nativedeps/nativedeps-debug.tar.zst"])
	assert.Contains(t, bucket.objects, "deps/nativedeps/nativedeps-release.tar.zst.b3")
	assert.Equal(t, "application/zstd", bucket.types["deps/nativedeps/nativedeps-release.tar.zst"])
	assert.Equal(t, "text/plain", bucket.types["deps/nativedeps/nativedeps-release.tar.zst.b3"])
}

func TestPublishPackagesRequiresSidecar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nativedeps-release.zip"), []byte("PK"), 0o644))

	p := &Publisher{Client: &fakeBucket{}, Bucket: "deps"}
	_, err := p.PublishPackages(context.Background(), dir, NewConsole(io.Discard, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sidecar")
}

func TestPublishPackagesEmptyDir(t *testing.T) {
	p := &Publisher{Client: &fakeBucket{}, Bucket: "deps"}
	_, err := p.PublishPackages(context.Background(), t.TempDir(), NewConsole(io.Discard, false))
	require.Error(t, err)
}

func TestNewPublisherNeedsBucket(t *testing.T) {
	_, err := NewPublisher(context.Background(), PublishConfig{Region: "auto"}, false)
	require.Error(t, err)
}

func TestNewPublisherStaticCredentials(t *testing.T) {
	p, err := NewPublisher(context.Background(), PublishConfig{
		Endpoint:        "https://account.r2.cloudflarestorage.com",
		Region:          "auto",
		Bucket:          "deps",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "deps", p.Bucket)
	assert.Equal(t, "nativedeps-release.zip", p.Key("nativedeps-release.zip"))
	assert.IsType(t, &s3.Client{}, p.Client)
}
