package imagecache

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/set-night/pixchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	data  []byte
	mime  string
	err   error
}

func (f *fakeFetcher) Download(_ context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[url]++
	return f.data, f.mime, f.err
}

func TestGet_FetchesOnceThenServesFromMemory(t *testing.T) {
	f := &fakeFetcher{data: pngPixel, mime: "image/png"}
	c, err := New(t.TempDir(), 4, f)
	require.NoError(t, err)

	url := "https://cdn.example.com/a.png"
	data, info, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
	assert.Equal(t, "image/png", info.MIME)
	assert.FileExists(t, info.Path)
	assert.Equal(t, ".png", filepath.Ext(info.Path))

	_, again, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls[url])
	assert.Equal(t, info.ID, again.ID)
}

func TestGet_DiskSurvivesEviction(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{data: pngPixel, mime: "image/png"}
	c, err := New(dir, 1, f)
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), "https://x/1.png")
	require.NoError(t, err)
	_, _, err = c.Get(context.Background(), "https://x/2.png")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	// 1.png was evicted from memory but must come back from disk.
	data, _, err := c.Get(context.Background(), "https://x/1.png")
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
	assert.Equal(t, 1, f.calls["https://x/1.png"])
}

func TestGet_NewCacheReadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	c1, err := New(dir, 4, nil)
	require.NoError(t, err)
	stored, err := c1.Put("https://x/keep.png", pngPixel, "image/png")
	require.NoError(t, err)

	c2, err := New(dir, 4, nil)
	require.NoError(t, err)
	data, info, err := c2.Get(context.Background(), "https://x/keep.png")
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
	assert.Equal(t, "image/png", info.MIME)
	assert.Equal(t, stored.ID, info.ID)
}

func TestGet_GeneratedMissIsNotFetched(t *testing.T) {
	f := &fakeFetcher{}
	c, err := New(t.TempDir(), 4, f)
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), domain.GeneratedScheme+"0b3f6a7e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, domain.ErrImageNotCached)
	assert.Empty(t, f.calls)
}

func TestGet_FetchError(t *testing.T) {
	boom := errors.New("boom")
	c, err := New(t.TempDir(), 4, &fakeFetcher{err: boom})
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), "https://x/y.png")
	assert.ErrorIs(t, err, boom)
}

func TestStoreBase64(t *testing.T) {
	c, err := New(t.TempDir(), 4, nil)
	require.NoError(t, err)

	info, err := c.StoreBase64(base64.StdEncoding.EncodeToString(pngPixel), "")
	require.NoError(t, err)
	assert.True(t, info.IsGenerated())
	assert.Equal(t, "image/png", info.MIME)
	assert.Equal(t, int64(len(pngPixel)), info.Size)
	assert.Equal(t, domain.GeneratedScheme+info.ID.String(), info.URL)

	data, got, err := c.Get(context.Background(), info.URL)
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
	assert.Equal(t, info.ID, got.ID)
}

func TestDecodeBase64_Variants(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 0x02}
	inputs := []string{
		base64.StdEncoding.EncodeToString(raw),
		base64.RawStdEncoding.EncodeToString(raw),
		base64.URLEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
		"data:image/webp;base64," + base64.StdEncoding.EncodeToString(raw),
	}
	for _, in := range inputs {
		data, _, err := DecodeBase64(in)
		require.NoError(t, err, in)
		assert.Equal(t, raw, data, in)
	}

	_, declared, err := DecodeBase64("data:image/webp;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", declared)

	_, _, err = DecodeBase64("***")
	assert.Error(t, err)
	_, _, err = DecodeBase64("")
	assert.Error(t, err)
}

func TestPut_ReplacesDifferentType(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 4, nil)
	require.NoError(t, err)

	_, err = c.Put("https://x/y", pngPixel, "image/png")
	require.NoError(t, err)
	info, err := c.Put("https://x/y", []byte("GIF89a...."), "image/gif")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(info.Path), entries[0].Name())
}

func TestRemoveAndClear(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 4, nil)
	require.NoError(t, err)

	a, err := c.Put("https://x/a", pngPixel, "image/png")
	require.NoError(t, err)
	_, err = c.Put("https://x/b", pngPixel, "image/png")
	require.NoError(t, err)

	c.Remove("https://x/a")
	assert.NoFileExists(t, a.Path)
	_, _, err = c.Get(context.Background(), "https://x/a")
	assert.ErrorIs(t, err, domain.ErrImageNotCached)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreBytes(t *testing.T) {
	c, err := New(t.TempDir(), 4, nil)
	require.NoError(t, err)

	info, err := c.StoreBytes(pngPixel, "image/png; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIME)
	assert.True(t, info.IsGenerated())

	_, err = c.StoreBytes(nil, "image/png")
	assert.Error(t, err)
}

func TestPut_ConcurrentWritersOfSameURL(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 4, nil)
	require.NoError(t, err)

	const writers, rounds = 8, 20
	gif := []byte("GIF89a....")
	var wg sync.WaitGroup
	errs := make(chan error, writers*rounds)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				data, mime := pngPixel, "image/png"
				if (w+r)%2 == 0 {
					data, mime = gif, "image/gif"
				}
				if _, err := c.Put("https://x/shared", data, mime); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "exactly one final file, no temp leftovers")

	fresh, err := New(dir, 4, nil)
	require.NoError(t, err)
	data, _, err := fresh.Get(context.Background(), "https://x/shared")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGet_IgnoresInProgressWrites(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 4, nil)
	require.NoError(t, err)

	tmp := filepath.Join(dir, "."+key("https://x/t")+".png.123.tmp")
	require.NoError(t, os.WriteFile(tmp, pngPixel, 0o644))

	_, _, err = c.Get(context.Background(), "https://x/t")
	assert.ErrorIs(t, err, domain.ErrImageNotCached)

	_, err = c.Put("https://x/t", pngPixel, "image/png")
	require.NoError(t, err)
	assert.FileExists(t, tmp, "another writer's temp file is left alone")
}
