package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/pixchat/internal/config"
	"github.com/set-night/pixchat/internal/domain"
)

type HistoryStore interface {
	SaveChat(ctx context.Context, chat *domain.ChatHistory) error
	GetChat(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.ChatHistory, error)
	ListChats(ctx context.Context, ownerID int64, limit, offset int) ([]domain.ChatHistory, error)
	CountChats(ctx context.Context, ownerID int64) (int, error)
	DeleteChat(ctx context.Context, ownerID int64, id uuid.UUID) error

	AddGalleryItem(ctx context.Context, item domain.GalleryHistoryItem) error
	GetGalleryItem(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error)
	ListGallery(ctx context.Context, ownerID int64, limit, offset int) ([]domain.GalleryHistoryItem, error)
	CountGallery(ctx context.Context, ownerID int64) (int, error)
	DeleteGalleryItem(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error)
	DeleteGalleryByChat(ctx context.Context, ownerID int64, chatID uuid.UUID) ([]domain.GalleryHistoryItem, error)
	TrimGallery(ctx context.Context, ownerID int64, keep int) ([]domain.GalleryHistoryItem, error)
}

// ImageRemover drops cached image files once nothing references them.
type ImageRemover interface {
	Remove(url string)
}

type HistoryService struct {
	store        HistoryStore
	images       ImageRemover
	galleryLimit int
}

func NewHistoryService(store HistoryStore, images ImageRemover) *HistoryService {
	return &HistoryService{store: store, images: images, galleryLimit: config.GalleryLimit}
}

// SaveChat stamps the title and update time, then persists the chat.
// Chats without messages are not stored.
func (s *HistoryService) SaveChat(ctx context.Context, chat *domain.ChatHistory) error {
	if len(chat.Messages) == 0 {
		return nil
	}
	if chat.Title == "" {
		chat.Title = chat.DeriveTitle(config.MaxTitleLen)
	}
	chat.UpdatedAt = time.Now()
	return s.store.SaveChat(ctx, chat)
}

func (s *HistoryService) GetChat(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.ChatHistory, error) {
	return s.store.GetChat(ctx, ownerID, id)
}

// LatestChat returns the most recently updated chat, or ErrHistoryNotFound.
func (s *HistoryService) LatestChat(ctx context.Context, ownerID int64) (*domain.ChatHistory, error) {
	chats, err := s.store.ListChats(ctx, ownerID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, domain.ErrHistoryNotFound
	}
	return &chats[0], nil
}

func (s *HistoryService) ListChats(ctx context.Context, ownerID int64, limit, offset int) ([]domain.ChatHistory, error) {
	return s.store.ListChats(ctx, ownerID, limit, offset)
}

func (s *HistoryService) CountChats(ctx context.Context, ownerID int64) (int, error) {
	return s.store.CountChats(ctx, ownerID)
}

// DeleteChat removes the chat along with the gallery items and images it produced.
func (s *HistoryService) DeleteChat(ctx context.Context, ownerID int64, id uuid.UUID) error {
	chat, err := s.store.GetChat(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteChat(ctx, ownerID, id); err != nil {
		return err
	}

	removed, err := s.store.DeleteGalleryByChat(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete chat gallery: %w", err)
	}
	for _, item := range removed {
		s.removeImage(item.Image)
	}
	for _, m := range chat.Messages {
		for _, img := range m.Images {
			s.removeImage(img)
		}
	}
	return nil
}

// AddGalleryItem records a generated image and drops the oldest items past the limit.
func (s *HistoryService) AddGalleryItem(ctx context.Context, item domain.GalleryHistoryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if err := s.store.AddGalleryItem(ctx, item); err != nil {
		return err
	}

	dropped, err := s.store.TrimGallery(ctx, item.OwnerID, s.galleryLimit)
	if err != nil {
		slog.Warn("trim gallery", "owner_id", item.OwnerID, "error", err)
		return nil
	}
	for _, d := range dropped {
		s.removeImage(d.Image)
	}
	return nil
}

func (s *HistoryService) GetGalleryItem(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error) {
	return s.store.GetGalleryItem(ctx, ownerID, id)
}

func (s *HistoryService) ListGallery(ctx context.Context, ownerID int64, limit, offset int) ([]domain.GalleryHistoryItem, error) {
	return s.store.ListGallery(ctx, ownerID, limit, offset)
}

func (s *HistoryService) CountGallery(ctx context.Context, ownerID int64) (int, error) {
	return s.store.CountGallery(ctx, ownerID)
}

func (s *HistoryService) DeleteGalleryItem(ctx context.Context, ownerID int64, id uuid.UUID) error {
	item, err := s.store.DeleteGalleryItem(ctx, ownerID, id)
	if err != nil {
		return err
	}
	s.removeImage(item.Image)
	return nil
}

// removeImage only touches generated images; remote URLs stay cached for reuse.
func (s *HistoryService) removeImage(img domain.ImageData) {
	if s.images == nil || !img.IsGenerated() {
		return
	}
	s.images.Remove(img.URL)
}

// IsNotFound reports whether err means a chat or gallery item does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrHistoryNotFound) || errors.Is(err, domain.ErrGalleryItemNotFound)
}
