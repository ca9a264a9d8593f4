package chat

import (
	"sync"
	"testing"

	"github.com/set-night/pixchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConv() *Conversation {
	return NewConversation(domain.NewChatHistory(1))
}

func TestBegin_AppendsUserThenAssistant(t *testing.T) {
	c := newConv()
	var updates []domain.ChatMessage

	require.NoError(t, c.Begin("hello", nil, func(m domain.ChatMessage) { updates = append(updates, m) }))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, domain.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "hello", snap.Messages[0].Text)
	assert.Equal(t, domain.RoleAssistant, snap.Messages[1].Role)
	assert.True(t, snap.Messages[1].IsEmpty())
	require.Len(t, updates, 1)
	assert.Equal(t, snap.Messages[1].ID, updates[0].ID)
	assert.True(t, c.InFlight())
}

func TestBegin_Rejections(t *testing.T) {
	c := newConv()
	assert.ErrorIs(t, c.Begin("  ", nil, nil), domain.ErrEmptyPrompt)

	require.NoError(t, c.Begin("", []domain.ImageData{{URL: "generated://x"}}, nil))
	assert.ErrorIs(t, c.Begin("again", nil, nil), domain.ErrStreamInProgress)
}

func TestAppendDelta_MirrorsIntoLastMessage(t *testing.T) {
	c := newConv()
	var seen []string
	require.NoError(t, c.Begin("hi", nil, func(m domain.ChatMessage) { seen = append(seen, m.Text) }))

	c.AppendDelta("Hel")
	c.AppendDelta("")
	c.AppendDelta("lo")
	c.AttachImage(domain.ImageData{URL: "generated://1"})

	last, ok := c.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "Hello", last.Text)
	assert.Len(t, last.Images, 1)
	assert.Equal(t, []string{"", "Hel", "Hello", "Hello"}, seen)
}

func TestAppendDelta_IgnoredOutsideTurn(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("hi", nil, nil))
	c.AppendDelta("answer")
	c.Finish()

	c.AppendDelta(" late")
	last, _ := c.LastMessage()
	assert.Equal(t, "answer", last.Text)
}

func TestFail_RemovesEmptyPlaceholder(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("draw", nil, nil))
	c.Fail(Prompt{Text: "draw"})

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, domain.RoleUser, snap.Messages[0].Role)
	assert.False(t, c.InFlight())

	p, ok := c.PendingRetry()
	require.True(t, ok)
	assert.Equal(t, "draw", p.Text)
}

func TestFail_KeepsPartialContent(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("story", nil, nil))
	c.AppendDelta("Once upon")
	c.Fail(Prompt{Text: "story"})

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Once upon", snap.Messages[1].Text)
}

func TestBeginRetry_ReplacesFailedTurn(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("first", nil, nil))
	c.AppendDelta("ok")
	c.Finish()

	require.NoError(t, c.Begin("second", nil, nil))
	c.AppendDelta("partial")
	c.Fail(Prompt{Text: "second"})
	require.Len(t, c.Snapshot().Messages, 4)

	require.NoError(t, c.BeginRetry("second", nil, nil))
	c.AppendDelta("complete")
	c.Finish()

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "ok", snap.Messages[1].Text)
	assert.Equal(t, "second", snap.Messages[2].Text)
	assert.Equal(t, "complete", snap.Messages[3].Text)

	_, ok := c.PendingRetry()
	assert.False(t, ok)
}

func TestBeginRetry_AfterReject(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("first", nil, nil))
	c.AppendDelta("ok")
	c.Finish()

	c.Reject(Prompt{Text: "second"})
	require.Len(t, c.Snapshot().Messages, 2)
	p, ok := c.PendingRetry()
	require.True(t, ok)
	assert.Equal(t, "second", p.Text)

	require.NoError(t, c.BeginRetry(p.Text, nil, nil))
	snap := c.Snapshot()
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "ok", snap.Messages[1].Text)
	assert.Equal(t, "second", snap.Messages[2].Text)
}

func TestBeginRetry_NothingPending(t *testing.T) {
	c := newConv()
	assert.ErrorIs(t, c.BeginRetry("x", nil, nil), domain.ErrNothingToRetry)

	require.NoError(t, c.Begin("busy", nil, nil))
	c.Reject(Prompt{Text: "ignored"})
	c.Finish()
	_, ok := c.PendingRetry()
	assert.False(t, ok)
}

func TestSnapshot_IsIsolated(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("hi", nil, nil))
	snap := c.Snapshot()
	c.AppendDelta("later")

	assert.Empty(t, snap.Messages[1].Text)
}

func TestConversation_ConcurrentDeltas(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("hi", nil, func(domain.ChatMessage) {}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AppendDelta("x")
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	last, _ := c.LastMessage()
	assert.Len(t, last.Text, 50)
}

func TestAbort_EndsTurnWithoutRetry(t *testing.T) {
	c := newConv()
	require.NoError(t, c.Begin("draw", nil, nil))
	c.Abort()

	assert.False(t, c.InFlight())
	_, ok := c.PendingRetry()
	assert.False(t, ok)
	require.Len(t, c.Snapshot().Messages, 1)
	require.NoError(t, c.Begin("again", nil, nil))
}
