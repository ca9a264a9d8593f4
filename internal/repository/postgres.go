package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/pixchat/internal/domain"
)

// PostgresStore keeps chats and gallery items in Postgres. Messages and
// image metadata are stored as jsonb.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

const chatColumns = `id, owner_id, title, messages, created_at, updated_at`

func (s *PostgresStore) SaveChat(ctx context.Context, chat *domain.ChatHistory) error {
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO chat_histories (`+chatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`,
		chat.ID, chat.OwnerID, chat.Title, messages, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.ChatHistory, error) {
	row := s.db.QueryRow(ctx, `SELECT `+chatColumns+` FROM chat_histories WHERE owner_id = $1 AND id = $2`, ownerID, id)
	chat, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) ListChats(ctx context.Context, ownerID int64, limit, offset int) ([]domain.ChatHistory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+chatColumns+` FROM chat_histories
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT NULLIF($2::int, 0) OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []domain.ChatHistory
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) CountChats(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_histories WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteChat(ctx context.Context, ownerID int64, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_histories WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHistoryNotFound
	}
	return nil
}

const galleryColumns = `id, owner_id, chat_id, prompt, image, created_at`

func (s *PostgresStore) AddGalleryItem(ctx context.Context, item domain.GalleryHistoryItem) error {
	image, err := json.Marshal(item.Image)
	if err != nil {
		return fmt.Errorf("marshal image: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO gallery_items (`+galleryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.OwnerID, nullUUID(item.ChatID), item.Prompt, image, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("add gallery item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGalleryItem(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error) {
	row := s.db.QueryRow(ctx, `SELECT `+galleryColumns+` FROM gallery_items WHERE owner_id = $1 AND id = $2`, ownerID, id)
	item, err := scanGalleryItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGalleryItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListGallery(ctx context.Context, ownerID int64, limit, offset int) ([]domain.GalleryHistoryItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+galleryColumns+` FROM gallery_items
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2::int, 0) OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	return collectGallery(rows)
}

func (s *PostgresStore) CountGallery(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM gallery_items WHERE owner_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gallery: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteGalleryItem(ctx context.Context, ownerID int64, id uuid.UUID) (*domain.GalleryHistoryItem, error) {
	row := s.db.QueryRow(ctx, `
		DELETE FROM gallery_items WHERE owner_id = $1 AND id = $2
		RETURNING `+galleryColumns, ownerID, id)
	item, err := scanGalleryItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGalleryItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete gallery item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteGalleryByChat(ctx context.Context, ownerID int64, chatID uuid.UUID) ([]domain.GalleryHistoryItem, error) {
	rows, err := s.db.Query(ctx, `
		DELETE FROM gallery_items WHERE owner_id = $1 AND chat_id = $2
		RETURNING `+galleryColumns, ownerID, chatID)
	if err != nil {
		return nil, fmt.Errorf("delete gallery by chat: %w", err)
	}
	return collectGallery(rows)
}

func (s *PostgresStore) TrimGallery(ctx context.Context, ownerID int64, keep int) ([]domain.GalleryHistoryItem, error) {
	rows, err := s.db.Query(ctx, `
		DELETE FROM gallery_items
		WHERE id IN (
			SELECT id FROM gallery_items
			WHERE owner_id = $1
			ORDER BY created_at DESC
			OFFSET $2
		)
		RETURNING `+galleryColumns, ownerID, keep)
	if err != nil {
		return nil, fmt.Errorf("trim gallery: %w", err)
	}
	return collectGallery(rows)
}

func scanChat(row pgx.Row) (*domain.ChatHistory, error) {
	var chat domain.ChatHistory
	var messages []byte
	if err := row.Scan(&chat.ID, &chat.OwnerID, &chat.Title, &messages, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &chat.Messages); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}
	return &chat, nil
}

func scanGalleryItem(row pgx.Row) (*domain.GalleryHistoryItem, error) {
	var item domain.GalleryHistoryItem
	var chatID *uuid.UUID
	var image []byte
	if err := row.Scan(&item.ID, &item.OwnerID, &chatID, &item.Prompt, &image, &item.CreatedAt); err != nil {
		return nil, err
	}
	if chatID != nil {
		item.ChatID = *chatID
	}
	if err := json.Unmarshal(image, &item.Image); err != nil {
		return nil, fmt.Errorf("parse image: %w", err)
	}
	return &item, nil
}

func collectGallery(rows pgx.Rows) ([]domain.GalleryHistoryItem, error) {
	defer rows.Close()
	var items []domain.GalleryHistoryItem
	for rows.Next() {
		item, err := scanGalleryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gallery item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
