package repository

import (
	"context"
	"io/fs"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pixchat "github.com/set-night/pixchat"
	"github.com/set-night/pixchat/internal/domain"
)

// newPostgresStore connects to PIXCHAT_TEST_DATABASE_URL and applies the
// embedded migrations. Tests are skipped when it is unset. Each test gets
// its own owner ID so runs do not see each other's rows.
func newPostgresStore(t *testing.T) (*PostgresStore, int64) {
	t.Helper()
	url := os.Getenv("PIXCHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PIXCHAT_TEST_DATABASE_URL not set")
	}

	migrations, err := fs.Sub(pixchat.MigrationsFS, "migrations")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := OpenPostgres(ctx, PoolConfig{URL: url, MaxConns: 4, MinConns: 1}, migrations)
	require.NoError(t, err)

	owner := rand.Int63n(1<<40) + 1
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = s.db.Exec(ctx, `DELETE FROM gallery_items WHERE owner_id = $1`, owner)
		_, _ = s.db.Exec(ctx, `DELETE FROM chat_histories WHERE owner_id = $1`, owner)
		s.Close()
	})
	return s, owner
}

func TestPostgresStore_SaveGetChat(t *testing.T) {
	s, owner := newPostgresStore(t)
	ctx := context.Background()

	chat := chatAt(owner, time.Now(), "a red fox")
	chat.Messages = append(chat.Messages, domain.NewMessage(domain.RoleAssistant, "here you go",
		[]domain.ImageData{{ID: uuid.New(), URL: domain.GeneratedScheme + "x", MIME: "image/png"}}))
	require.NoError(t, s.SaveChat(ctx, chat))

	got, err := s.GetChat(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "a red fox", got.Title)
	require.Len(t, got.Messages, 2)
	require.Len(t, got.Messages[1].Images, 1)
	assert.Equal(t, "image/png", got.Messages[1].Images[0].MIME)
	assert.WithinDuration(t, chat.UpdatedAt, got.UpdatedAt, time.Millisecond)

	_, err = s.GetChat(ctx, owner+1, chat.ID)
	assert.ErrorIs(t, err, domain.ErrHistoryNotFound)

	chat.Title = "v2"
	require.NoError(t, s.SaveChat(ctx, chat))
	n, err := s.CountChats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.DeleteChat(ctx, owner, chat.ID))
	assert.ErrorIs(t, s.DeleteChat(ctx, owner, chat.ID), domain.ErrHistoryNotFound)
}

func TestPostgresStore_ListChatsNewestFirst(t *testing.T) {
	s, owner := newPostgresStore(t)
	ctx := context.Background()
	base := time.Now()

	for _, c := range []*domain.ChatHistory{
		chatAt(owner, base.Add(-time.Hour), "mid"),
		chatAt(owner, base.Add(-2*time.Hour), "old"),
		chatAt(owner, base, "recent"),
	} {
		require.NoError(t, s.SaveChat(ctx, c))
	}

	all, err := s.ListChats(ctx, owner, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3, "zero limit lists everything")
	assert.Equal(t, []string{"recent", "mid", "old"}, []string{all[0].Title, all[1].Title, all[2].Title})

	second, err := s.ListChats(ctx, owner, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "old", second[0].Title)
}

func TestPostgresStore_Gallery(t *testing.T) {
	s, owner := newPostgresStore(t)
	ctx := context.Background()
	chatA := uuid.New()
	base := time.Now()

	first := galleryItem(owner, chatA, "first")
	first.CreatedAt = base.Add(-2 * time.Minute)
	loose := galleryItem(owner, uuid.Nil, "no chat")
	loose.CreatedAt = base.Add(-time.Minute)
	third := galleryItem(owner, chatA, "third")
	third.CreatedAt = base
	for _, it := range []domain.GalleryHistoryItem{first, loose, third} {
		require.NoError(t, s.AddGalleryItem(ctx, it))
	}

	items, err := s.ListGallery(ctx, owner, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "third", items[0].Prompt)
	assert.Equal(t, "first", items[2].Prompt)

	got, err := s.GetGalleryItem(ctx, owner, loose.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got.ChatID)
	assert.Equal(t, loose.Image.URL, got.Image.URL)

	removed, err := s.DeleteGalleryByChat(ctx, owner, chatA)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	del, err := s.DeleteGalleryItem(ctx, owner, loose.ID)
	require.NoError(t, err)
	assert.Equal(t, loose.ID, del.ID)
	_, err = s.DeleteGalleryItem(ctx, owner, loose.ID)
	assert.ErrorIs(t, err, domain.ErrGalleryItemNotFound)
	_, err = s.GetGalleryItem(ctx, owner, loose.ID)
	assert.ErrorIs(t, err, domain.ErrGalleryItemNotFound)
}

func TestPostgresStore_TrimGallery(t *testing.T) {
	s, owner := newPostgresStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, p := range []string{"a", "b", "c", "d"} {
		it := galleryItem(owner, uuid.Nil, p)
		it.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.AddGalleryItem(ctx, it))
	}

	removed, err := s.TrimGallery(ctx, owner, 2)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{removed[0].Prompt, removed[1].Prompt})

	items, err := s.ListGallery(ctx, owner, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "d", items[0].Prompt)

	removed, err = s.TrimGallery(ctx, owner, 5)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
