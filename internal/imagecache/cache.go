// Package imagecache keeps images on local disk keyed by URL, with a bounded
// in-memory LRU of recently used image bytes in front of the files.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/set-night/pixchat/internal/domain"
	"github.com/set-night/pixchat/internal/fsutil"
)

// Fetcher downloads remote images on a cache miss.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

type entry struct {
	data []byte
	info domain.ImageData
}

type Cache struct {
	dir     string
	writeMu sync.Mutex // orders write+sweep so concurrent Puts of one URL keep a file
	memory  *lru.Cache[string, entry]
	fetcher Fetcher
}

func New(dir string, entries int, fetcher Fetcher) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	memory, err := lru.New[string, entry](entries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{dir: dir, memory: memory, fetcher: fetcher}, nil
}

// Get returns the image for url from memory, then disk, then the network.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, domain.ImageData, error) {
	if e, ok := c.memory.Get(url); ok {
		return e.data, e.info, nil
	}

	data, info, err := c.readDisk(url)
	if err == nil {
		c.memory.Add(url, entry{data: data, info: info})
		return data, info, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ImageData{}, err
	}

	if !isRemote(url) || c.fetcher == nil {
		return nil, domain.ImageData{}, domain.ErrImageNotCached
	}

	data, mimeType, err := c.fetcher.Download(ctx, url)
	if err != nil {
		return nil, domain.ImageData{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	info, err = c.Put(url, data, mimeType)
	if err != nil {
		return nil, domain.ImageData{}, err
	}
	return data, info, nil
}

// Put stores data under url, replacing any previous content.
func (c *Cache) Put(url string, data []byte, mimeType string) (domain.ImageData, error) {
	mimeType = normalizeMIME(mimeType, data)
	path := c.path(url, mimeType)

	c.writeMu.Lock()
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		c.writeMu.Unlock()
		return domain.ImageData{}, fmt.Errorf("write image: %w", err)
	}
	// A URL re-stored with a different type would otherwise leave the old file behind.
	c.removeFiles(url, path)
	c.writeMu.Unlock()

	info := domain.ImageData{
		ID:   imageID(url),
		URL:  url,
		MIME: mimeType,
		Path: path,
		Size: int64(len(data)),
	}
	c.memory.Add(url, entry{data: data, info: info})
	return info, nil
}

// StoreBase64 decodes an inline image payload and stores it under a new
// generated:// key.
func (c *Cache) StoreBase64(b64, mimeType string) (domain.ImageData, error) {
	data, declared, err := DecodeBase64(b64)
	if err != nil {
		return domain.ImageData{}, err
	}
	if mimeType == "" {
		mimeType = declared
	}
	return c.StoreBytes(data, mimeType)
}

// StoreBytes keeps an image that has no remote URL of its own.
func (c *Cache) StoreBytes(data []byte, mimeType string) (domain.ImageData, error) {
	if len(data) == 0 {
		return domain.ImageData{}, fmt.Errorf("empty image")
	}
	return c.Put(domain.GeneratedScheme+uuid.NewString(), data, mimeType)
}

func (c *Cache) Remove(url string) {
	c.memory.Remove(url)
	c.removeFiles(url, "")
}

// Clear drops every cached image from memory and disk.
func (c *Cache) Clear() error {
	c.memory.Purge()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Len is the number of images currently held in memory.
func (c *Cache) Len() int {
	return c.memory.Len()
}

func (c *Cache) readDisk(url string) ([]byte, domain.ImageData, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, key(url)+".*"))
	if err != nil {
		return nil, domain.ImageData{}, err
	}
	for _, path := range matches {
		if fsutil.IsTemp(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ImageData{}, fmt.Errorf("read image: %w", err)
		}
		info := domain.ImageData{
			ID:   imageID(url),
			URL:  url,
			MIME: mimeForExt(filepath.Ext(path)),
			Path: path,
			Size: int64(len(data)),
		}
		return data, info, nil
	}
	return nil, domain.ImageData{}, fs.ErrNotExist
}

// removeFiles deletes the stored files for url except keep. In-progress
// writes are hidden files and never match the glob.
func (c *Cache) removeFiles(url, keep string) {
	matches, _ := filepath.Glob(filepath.Join(c.dir, key(url)+".*"))
	for _, path := range matches {
		if path == keep || fsutil.IsTemp(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove cached image", "path", path, "error", err)
		}
	}
}

func (c *Cache) path(url, mimeType string) string {
	return filepath.Join(c.dir, key(url)+extForMIME(mimeType))
}

func key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// imageID is stable per URL: generated images keep the uuid in their key,
// remote ones get a name-based uuid.
func imageID(url string) uuid.UUID {
	if rest, ok := strings.CutPrefix(url, domain.GeneratedScheme); ok {
		if id, err := uuid.Parse(rest); err == nil {
			return id
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url))
}

// DecodeBase64 accepts standard or URL-safe base64, padded or not, with an
// optional data: URI prefix. It returns the MIME type declared by the prefix.
func DecodeBase64(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var declared string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		declared, _, _ = strings.Cut(meta, ";")
		s = payload
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, "", fmt.Errorf("empty image payload")
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, declared, nil
		}
	}
	return nil, "", fmt.Errorf("decode image payload: not valid base64")
}

func normalizeMIME(mimeType string, data []byte) string {
	mimeType, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	if strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}
	sniffed, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return sniffed
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

func extForMIME(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

func mimeForExt(ext string) string {
	for m, e := range extensions {
		if e == ext {
			return m
		}
	}
	return "application/octet-stream"
}
