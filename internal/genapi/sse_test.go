package genapi

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *SSEReader) []string {
	t.Helper()
	var out []string
	for {
		payload, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(payload))
	}
}

func TestSSEReader_DataLines(t *testing.T) {
	body := "data: {\"delta\":\"a\"}\n" +
		"data: {\"delta\":\"b\"}\r\n" +
		"\n" +
		": keep-alive\n" +
		"event: message\n" +
		"id: 7\n" +
		"data:{\"delta\":\"c\"}\n" +
		"data: [DONE]"

	got := readAll(t, NewSSEReader(strings.NewReader(body)))
	assert.Equal(t, []string{`{"delta":"a"}`, `{"delta":"b"}`, `{"delta":"c"}`, "[DONE]"}, got)
}

func TestSSEReader_BareJSONLines(t *testing.T) {
	body := "{\"text\":\"x\"}\n{\"done\":true}\n"
	got := readAll(t, NewSSEReader(strings.NewReader(body)))
	assert.Equal(t, []string{`{"text":"x"}`, `{"done":true}`}, got)
}

func TestSSEReader_SkipsEmptyData(t *testing.T) {
	got := readAll(t, NewSSEReader(strings.NewReader("data:\ndata: \nretry: 100\n")))
	assert.Empty(t, got)
}

func TestSSEReader_LongLineAcrossBuffer(t *testing.T) {
	long := strings.Repeat("A", 200<<10)
	body := "data: {\"image\":\"" + long + "\"}\n"

	got := readAll(t, NewSSEReader(strings.NewReader(body)))
	require.Len(t, got, 1)
	assert.Len(t, got[0], len(long)+len(`{"image":""}`))
}

func TestSSEReader_FrameTooLarge(t *testing.T) {
	r := NewSSEReader(strings.NewReader("data: " + strings.Repeat("x", 1024) + "\n"))
	r.maxSize = 512

	_, err := r.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
