package service

import (
	"context"
	"log/slog"

	"github.com/set-night/pixchat/internal/config"
	"github.com/set-night/pixchat/internal/domain"
)

type ManifestFetcher interface {
	Manifest(ctx context.Context, url string) (*domain.ContentManifest, error)
}

type ContentService struct {
	fetcher ManifestFetcher
	url     string
	cache   *ManifestCache
}

func NewContentService(fetcher ManifestFetcher, url string) *ContentService {
	return &ContentService{
		fetcher: fetcher,
		url:     url,
		cache:   NewManifestCache(config.ManifestCacheDuration),
	}
}

// Manifest returns the content manifest. A stale copy is served when a
// refresh fails; with no URL configured the manifest is empty.
func (s *ContentService) Manifest(ctx context.Context) (*domain.ContentManifest, error) {
	if s.url == "" {
		return &domain.ContentManifest{}, nil
	}

	cached, fresh := s.cache.Get()
	if fresh {
		return cached, nil
	}

	manifest, err := s.fetcher.Manifest(ctx, s.url)
	if err != nil {
		if cached != nil {
			slog.Warn("manifest refresh failed, serving stale copy", "error", err, "version", cached.Version)
			return cached, nil
		}
		return nil, err
	}

	s.cache.Set(manifest)
	return manifest, nil
}

func (s *ContentService) Style(ctx context.Context, id string) (*domain.Style, error) {
	manifest, err := s.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	return manifest.Style(id)
}
