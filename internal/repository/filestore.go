package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/set-night/pixchat/internal/domain"
	"github.com/set-night/pixchat/internal/fsutil"
)

// FileStore persists chat and gallery history as JSON files:
//
//	<dir>/chats/<owner>/<chat id>.json
//	<dir>/gallery/<owner>.json
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"chats", "gallery"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) SaveChat(_ context.Context, chat *domain.ChatHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ownerDir := s.ownerDir(chat.OwnerID)
	if err := os.MkdirAll(ownerDir, 0o755); err != nil {
		return fmt.Errorf("create owner dir: %w", err)
	}
	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.chatPath(chat.OwnerID, chat.ID), data, 0o644); err != nil {
		return fmt.Errorf("write chat: %w", err)
	}
	return nil
}

func (s *FileStore) GetChat(_ context.Context, ownerID int64, id uuid.UUID) (*domain.ChatHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readChat(s.chatPath(ownerID, id))
}

func (s *FileStore) ListChats(_ context.Context, ownerID int64, limit, offset int) ([]domain.ChatHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats, err := s.allChats(ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return page(chats, limit, offset), nil
}

func (s *FileStore) CountChats(_ context.Context, ownerID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.ownerDir(ownerID))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read chats dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if isChatFile(e) {
			n++
		}
	}
	return n, nil
}

func (s *FileStore) DeleteChat(_ context.Context, ownerID int64, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.chatPath(ownerID, id))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ErrHistoryNotFound
	}
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (s *FileStore) AddGalleryItem(_ context.Context, item domain.GalleryHistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readGallery(item.OwnerID)
	if err != nil {
		return err
	}
	items = append([]domain.GalleryHistoryItem{item}, items...)
	return s.writeGallery(item.OwnerID, items)
}

func (s *FileStore) GetGalleryItem(_ context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.readGallery(ownerID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, domain.ErrGalleryItemNotFound
}

func (s *FileStore) ListGallery(_ context.Context, ownerID int64, limit, offset int) ([]domain.GalleryHistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.readGallery(ownerID)
	if err != nil {
		return nil, err
	}
	return page(items, limit, offset), nil
}

func (s *FileStore) CountGallery(_ context.Context, ownerID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.readGallery(ownerID)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *FileStore) DeleteGalleryItem(_ context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readGallery(ownerID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			removed := items[i]
			items = append(items[:i], items[i+1:]...)
			if err := s.writeGallery(ownerID, items); err != nil {
				return nil, err
			}
			return &removed, nil
		}
	}
	return nil, domain.ErrGalleryItemNotFound
}

func (s *FileStore) DeleteGalleryByChat(_ context.Context, ownerID int64, chatID uuid.UUID) ([]domain.GalleryHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readGallery(ownerID)
	if err != nil {
		return nil, err
	}
	var kept, removed []domain.GalleryHistoryItem
	for _, it := range items {
		if it.ChatID == chatID {
			removed = append(removed, it)
		} else {
			kept = append(kept, it)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	return removed, s.writeGallery(ownerID, kept)
}

// TrimGallery keeps the newest keep items and returns the ones dropped.
func (s *FileStore) TrimGallery(_ context.Context, ownerID int64, keep int) ([]domain.GalleryHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readGallery(ownerID)
	if err != nil {
		return nil, err
	}
	if len(items) <= keep {
		return nil, nil
	}
	removed := append([]domain.GalleryHistoryItem(nil), items[keep:]...)
	return removed, s.writeGallery(ownerID, items[:keep])
}

func (s *FileStore) allChats(ownerID int64) ([]domain.ChatHistory, error) {
	entries, err := os.ReadDir(s.ownerDir(ownerID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chats dir: %w", err)
	}

	chats := make([]domain.ChatHistory, 0, len(entries))
	for _, e := range entries {
		if !isChatFile(e) {
			continue
		}
		chat, err := s.readChat(filepath.Join(s.ownerDir(ownerID), e.Name()))
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, nil
}

func (s *FileStore) readChat(path string) (*domain.ChatHistory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chat: %w", err)
	}
	var chat domain.ChatHistory
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("parse chat %s: %w", filepath.Base(path), err)
	}
	return &chat, nil
}

func (s *FileStore) readGallery(ownerID int64) ([]domain.GalleryHistoryItem, error) {
	data, err := os.ReadFile(s.galleryPath(ownerID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}
	var items []domain.GalleryHistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse gallery: %w", err)
	}
	return items, nil
}

func (s *FileStore) writeGallery(ownerID int64, items []domain.GalleryHistoryItem) error {
	if items == nil {
		items = []domain.GalleryHistoryItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gallery: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.galleryPath(ownerID), data, 0o644); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	return nil
}

func (s *FileStore) ownerDir(ownerID int64) string {
	return filepath.Join(s.dir, "chats", strconv.FormatInt(ownerID, 10))
}

func (s *FileStore) chatPath(ownerID int64, id uuid.UUID) string {
	return filepath.Join(s.ownerDir(ownerID), id.String()+".json")
}

func (s *FileStore) galleryPath(ownerID int64) string {
	return filepath.Join(s.dir, "gallery", strconv.FormatInt(ownerID, 10)+".json")
}

func isChatFile(e os.DirEntry) bool {
	return !e.IsDir() && strings.HasSuffix(e.Name(), ".json")
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
