package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deixis/fontbridge/internal/fontbuild"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    string
}

func (m *memStore) Put(_ context.Context, key string, content []byte) error {
	if key == m.fail {
		return errors.New("access denied")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = content
	return nil
}

func writeOutputs(t *testing.T, dir string, files map[string]string) *fontbuild.Data {
	t.Helper()
	data := &fontbuild.Data{}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		data.WriteResults = append(data.WriteResults, fontbuild.WriteResult{WritePath: filepath.Join(dir, name)})
	}
	return data
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	data := writeOutputs(t, dir, map[string]string{
		"icons.ttf":  "\x00\x01\x00\x00",
		"icons.css":  ".icon{}",
		"icons.json": "{}",
	})
	store := &memStore{}
	p := &Publisher{Store: store, Concurrency: 2, Log: zaptest.NewLogger(t).Sugar()}

	objects, err := p.Publish(context.Background(), "run-1", data)
	require.NoError(t, err)
	require.Len(t, objects, 3)

	for i, wr := range data.WriteResults {
		assert.Equal(t, "run-1/"+filepath.Base(wr.WritePath), objects[i].Key)
		assert.Equal(t, wr.WritePath, objects[i].Path)
	}
	assert.Equal(t, []byte(".icon{}"), store.objects["run-1/icons.css"])
	assert.Len(t, store.objects, 3)
}

func TestPublish_UploadError(t *testing.T) {
	dir := t.TempDir()
	data := writeOutputs(t, dir, map[string]string{"icons.ttf": "x", "icons.css": "y"})

	p := &Publisher{Store: &memStore{fail: "run-1/icons.css"}}
	_, err := p.Publish(context.Background(), "run-1", data)
	assert.ErrorContains(t, err, "uploading run-1/icons.css: access denied")
}

func TestPublish_MissingFile(t *testing.T) {
	p := &Publisher{Store: &memStore{}}
	gone := filepath.Join(t.TempDir(), "gone.ttf")
	data := &fontbuild.Data{WriteResults: []fontbuild.WriteResult{{WritePath: gone}}}

	_, err := p.Publish(context.Background(), "run-1", data)
	assert.ErrorContains(t, err, "reading "+gone)
}

func TestPublish_Empty(t *testing.T) {
	p := &Publisher{Store: &memStore{}}
	objects, err := p.Publish(context.Background(), "run-1", &fontbuild.Data{})
	require.NoError(t, err)
	assert.Nil(t, objects)

	_, err = p.Publish(context.Background(), " ", &fontbuild.Data{})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "abc/icons.woff2", Key("abc", "/tmp/out/icons.woff2"))
	assert.Equal(t, "abc/icons.css", Key(" abc ", "out/icons.css"))
}

func TestNewS3Store_Validation(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"endpoint", S3Config{AccessKey: "a", SecretKey: "s", Bucket: "b"}, "endpoint is required"},
		{"credentials", S3Config{Endpoint: "localhost:9000", AccessKey: "a", Bucket: "b"}, "secret key are required"},
		{"bucket", S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}, "bucket is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewS3Store(tc.cfg)
			assert.ErrorContains(t, err, tc.want)
		})
	}

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: " fonts "})
	require.NoError(t, err)
	assert.Equal(t, "fonts", s.Bucket())
	assert.Equal(t, "us-east-1", s.region)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "font/woff2", contentType("r/icons.WOFF2"))
	assert.Equal(t, "font/ttf", contentType("r/icons.ttf"))
	assert.Equal(t, "application/octet-stream", contentType("r/icons.unknownext"))
}
