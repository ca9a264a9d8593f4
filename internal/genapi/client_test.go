package genapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", APIKey: "secret", CreditsURL: srv.URL, Timeout: 5 * time.Second})
}

func TestGenerate_JSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "a cat", got.Prompt)
		assert.False(t, got.Stream)
		assert.Len(t, got.History, 1)

		fmt.Fprint(w, `{"text":"here","images":[{"b64_json":"aGk=","mime_type":"image/png"}],"credits_remaining":3}`)
	})

	res, err := c.Generate(context.Background(), GenerationRequest{
		Prompt:  "a cat",
		History: []HistoryMessage{{Role: "user", Text: "hi"}},
		Stream:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "here", res.Text)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "aGk=", res.Images[0].B64)
	require.NotNil(t, res.CreditsRemaining)
	assert.Equal(t, "3", res.CreditsRemaining.String())
}

func TestGenerate_MultipartWithImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var payload GenerationRequest
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("payload")), &payload))
		assert.Equal(t, "make it blue", payload.Prompt)

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "photo.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

		fmt.Fprint(w, `{"text":"ok"}`)
	})

	res, err := c.Generate(context.Background(), GenerationRequest{
		Prompt: "make it blue",
		Image:  &InputImage{Name: "photo.jpg", MIME: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
}

func TestGenerate_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	})

	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "x"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestGenerate_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})

	_, err := c.Generate(context.Background(), GenerationRequest{Prompt: "x"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsUnavailable())
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestStream_DeliversEventsInOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var got GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.True(t, got.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"Hel\"}\n\n")
		fmt.Fprint(w, "data: {\"delta\":\"lo\"}\n\n")
		fmt.Fprint(w, "data: {\"image\":\"aGk=\",\"mime_type\":\"image/png\"}\n\n")
		fmt.Fprint(w, "data: {\"credits_remaining\":1.5}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"delta\":\"ignored\"}\n\n")
	})

	var types []EventType
	var text strings.Builder
	err := c.Stream(context.Background(), GenerationRequest{Prompt: "x"}, func(ev Event) error {
		types = append(types, ev.Type)
		text.WriteString(ev.Delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, []EventType{EventText, EventText, EventImage, EventCredits}, types)
}

func TestStream_ErrorEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"par\"}\n")
		fmt.Fprint(w, "data: {\"error\":\"model overloaded\"}\n")
	})

	var received string
	err := c.Stream(context.Background(), GenerationRequest{Prompt: "x"}, func(ev Event) error {
		received += ev.Delta
		return nil
	})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "model overloaded", apiErr.Message)
	assert.Equal(t, "par", received)
}

func TestStream_EOFWithoutDone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"only\"}")
	})

	var text string
	err := c.Stream(context.Background(), GenerationRequest{Prompt: "x"}, func(ev Event) error {
		text += ev.Delta
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "only", text)
}

func TestStream_InvalidFrame(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {broken\n")
	})

	err := c.Stream(context.Background(), GenerationRequest{Prompt: "x"}, func(Event) error { return nil })
	require.Error(t, err)
	_, isAPI := AsAPIError(err)
	assert.False(t, isAPI)
}

func TestStream_CallbackErrorAborts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"a\"}\ndata: {\"delta\":\"b\"}\n")
	})

	stop := fmt.Errorf("stop")
	calls := 0
	err := c.Stream(context.Background(), GenerationRequest{Prompt: "x"}, func(Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStream_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"a\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Stream(ctx, GenerationRequest{Prompt: "x"}, func(Event) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCredits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/credits", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"credits":"7.75"}`)
	})

	balance, err := c.Credits(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "7.75", balance.String())
}

func TestCredits_Disabled(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://unused"})
	_, err := c.Credits(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCreditsDisabled)
}

func TestManifest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"version":3,"styles":[{"id":"anime","title":"Anime","prompt":"in anime style"}],"suggestions":["a fox"]}`)
	})

	m, err := c.Manifest(context.Background(), c.baseURL+"/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Version)
	require.Len(t, m.Styles, 1)
	assert.Equal(t, "in anime style", m.Styles[0].Prompt)
	assert.Equal(t, []string{"a fox"}, m.Suggestions)
}

func TestDownload_Limit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(make([]byte, 100))
	})

	data, mimeType, err := c.Download(context.Background(), c.baseURL+"/img.png")
	require.NoError(t, err)
	assert.Len(t, data, 100)
	assert.Equal(t, "image/png", mimeType)

	c.maxDownload = 50
	_, _, err = c.Download(context.Background(), c.baseURL+"/img.png")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
