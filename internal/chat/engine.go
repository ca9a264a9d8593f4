package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/set-night/pixchat/internal/domain"
	"github.com/set-night/pixchat/internal/genapi"
	"github.com/shopspring/decimal"
)

type Generator interface {
	Generate(ctx context.Context, req genapi.GenerationRequest) (*genapi.Result, error)
	Stream(ctx context.Context, req genapi.GenerationRequest, fn func(genapi.Event) error) error
}

type ImageStore interface {
	StoreBase64(b64, mimeType string) (domain.ImageData, error)
	StoreBytes(data []byte, mimeType string) (domain.ImageData, error)
	Get(ctx context.Context, url string) ([]byte, domain.ImageData, error)
	Remove(url string)
}

type HistorySaver interface {
	SaveChat(ctx context.Context, chat *domain.ChatHistory) error
	AddGalleryItem(ctx context.Context, item domain.GalleryHistoryItem) error
}

type CreditsKeeper interface {
	Check(ctx context.Context, ownerID int64) error
	Update(ownerID int64, balance decimal.Decimal) domain.Credits
}

type StyleResolver interface {
	Style(ctx context.Context, id string) (*domain.Style, error)
}

// Photo is an image the user attached to a prompt.
type Photo struct {
	Data []byte
	MIME string
	Name string
}

type Prompt struct {
	Text    string
	StyleID string
	Photo   *Photo

	// stored is the cached copy of Photo, kept so a retry does not store it twice.
	stored []domain.ImageData
}

type TurnResult struct {
	Message domain.ChatMessage
	Images  []domain.ImageData
	Credits *decimal.Decimal
}

type EngineDeps struct {
	Generator  Generator
	Images     ImageStore
	History    HistorySaver
	Credits    CreditsKeeper
	Styles     StyleResolver
	Model      string
	Streaming  bool
	MaxHistory int
}

// Engine runs generation turns: it mirrors the backend's output into the
// conversation, stores returned images and persists the result.
type Engine struct {
	gen        Generator
	images     ImageStore
	history    HistorySaver
	credits    CreditsKeeper
	styles     StyleResolver
	model      string
	streaming  bool
	maxHistory int
}

func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		gen:        deps.Generator,
		images:     deps.Images,
		history:    deps.History,
		credits:    deps.Credits,
		styles:     deps.Styles,
		model:      deps.Model,
		streaming:  deps.Streaming,
		maxHistory: deps.MaxHistory,
	}
}

// Send runs one turn. On failure the empty assistant placeholder is
// dropped and the prompt can be resent with Retry.
func (e *Engine) Send(ctx context.Context, conv *Conversation, p Prompt, onUpdate Listener) (*TurnResult, error) {
	return e.send(ctx, conv, p, onUpdate, false)
}

// Retry resends the prompt of the last failed turn in place of that turn.
// If it fails again before starting, the prompt stays pending.
func (e *Engine) Retry(ctx context.Context, conv *Conversation, onUpdate Listener) (*TurnResult, error) {
	p, ok := conv.PendingRetry()
	if !ok {
		return nil, domain.ErrNothingToRetry
	}
	return e.send(ctx, conv, p, onUpdate, true)
}

func (e *Engine) send(ctx context.Context, conv *Conversation, p Prompt, onUpdate Listener, retry bool) (*TurnResult, error) {
	if strings.TrimSpace(p.Text) == "" && p.Photo == nil {
		return nil, domain.ErrEmptyPrompt
	}
	if conv.InFlight() {
		return nil, domain.ErrStreamInProgress
	}
	owner := conv.OwnerID()

	// rejected keeps a prompt retryable when it fails before the turn starts.
	rejected := func(err error) (*TurnResult, error) {
		if !retry && !errors.Is(err, domain.ErrInsufficientCredits) {
			conv.Reject(p)
		}
		return nil, err
	}

	if e.credits != nil {
		if err := e.credits.Check(ctx, owner); err != nil {
			return rejected(err)
		}
	}

	var fresh string
	if p.Photo != nil && p.stored == nil {
		img, err := e.images.StoreBytes(p.Photo.Data, p.Photo.MIME)
		if err != nil {
			return rejected(fmt.Errorf("store photo: %w", err))
		}
		p.stored = []domain.ImageData{img}
		fresh = img.URL
	}

	begin := conv.Begin
	if retry {
		begin = conv.BeginRetry
	}
	if err := begin(p.Text, p.stored, onUpdate); err != nil {
		if fresh != "" {
			e.images.Remove(fresh)
		}
		return nil, err
	}

	req := genapi.GenerationRequest{
		Model:   e.model,
		Prompt:  p.Text,
		History: e.historyFor(conv.Snapshot()),
	}
	if p.Photo != nil {
		req.Image = &genapi.InputImage{Name: p.Photo.Name, MIME: p.Photo.MIME, Data: p.Photo.Data}
	}

	result, err := e.run(ctx, conv, p, req)
	if err != nil {
		conv.Fail(p)
		e.save(ctx, conv)
		return nil, err
	}

	last, _ := conv.LastMessage()
	if last.IsEmpty() {
		conv.Fail(p)
		e.save(ctx, conv)
		return nil, domain.ErrEmptyResponse
	}

	conv.Finish()
	result.Message = last

	chatID := conv.ID()
	for _, img := range result.Images {
		item := domain.GalleryHistoryItem{
			OwnerID: owner,
			ChatID:  chatID,
			Prompt:  p.Text,
			Image:   img,
		}
		if err := e.history.AddGalleryItem(ctx, item); err != nil {
			slog.Error("add gallery item", "owner_id", owner, "error", err)
		}
	}
	e.save(ctx, conv)

	return result, nil
}

func (e *Engine) run(ctx context.Context, conv *Conversation, p Prompt, req genapi.GenerationRequest) (*TurnResult, error) {
	if p.StyleID != "" && e.styles != nil {
		style, err := e.styles.Style(ctx, p.StyleID)
		if err != nil {
			return nil, err
		}
		req.Style = style.Prompt
	}

	result := &TurnResult{}
	owner := conv.OwnerID()

	handle := func(ev genapi.Event) error {
		switch ev.Type {
		case genapi.EventText:
			conv.AppendDelta(ev.Delta)
		case genapi.EventImage:
			img, err := e.storeImage(ctx, ev.Image)
			if err != nil {
				return err
			}
			conv.AttachImage(img)
			result.Images = append(result.Images, img)
		case genapi.EventCredits:
			credits := ev.Credits
			result.Credits = &credits
			if e.credits != nil {
				e.credits.Update(owner, credits)
			}
		}
		return nil
	}

	if e.streaming {
		if err := e.gen.Stream(ctx, req, handle); err != nil {
			return nil, err
		}
		return result, nil
	}

	res, err := e.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := handle(genapi.Event{Type: genapi.EventText, Delta: res.Text}); err != nil {
		return nil, err
	}
	for _, img := range res.Images {
		if err := handle(genapi.Event{Type: genapi.EventImage, Image: img}); err != nil {
			return nil, err
		}
	}
	if res.CreditsRemaining != nil {
		_ = handle(genapi.Event{Type: genapi.EventCredits, Credits: *res.CreditsRemaining})
	}
	return result, nil
}

func (e *Engine) storeImage(ctx context.Context, payload genapi.ImagePayload) (domain.ImageData, error) {
	if payload.B64 != "" {
		img, err := e.images.StoreBase64(payload.B64, payload.MIME)
		if err != nil {
			return domain.ImageData{}, fmt.Errorf("store generated image: %w", err)
		}
		return img, nil
	}

	_, img, err := e.images.Get(ctx, payload.URL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.ImageData{}, err
		}
		// Keep the reference; the image can still be fetched later.
		slog.Warn("cache remote image", "url", payload.URL, "error", err)
		return domain.ImageData{URL: payload.URL, MIME: payload.MIME}, nil
	}
	return img, nil
}

// historyFor converts the chat before the running turn into request
// context, newest last. The turn's own user message and placeholder are the
// last two messages and are not included.
func (e *Engine) historyFor(chat *domain.ChatHistory) []genapi.HistoryMessage {
	msgs := chat.Messages
	if len(msgs) >= 2 {
		msgs = msgs[:len(msgs)-2]
	}
	var out []genapi.HistoryMessage
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		out = append(out, genapi.HistoryMessage{Role: string(m.Role), Text: m.Text})
	}
	if e.maxHistory > 0 && len(out) > e.maxHistory {
		out = out[len(out)-e.maxHistory:]
	}
	return out
}

func (e *Engine) save(ctx context.Context, conv *Conversation) {
	snapshot := conv.Snapshot()
	// Persist even if the turn's context is gone.
	if err := e.history.SaveChat(context.WithoutCancel(ctx), snapshot); err != nil {
		slog.Error("save chat", "chat_id", snapshot.ID, "owner_id", snapshot.OwnerID, "error", err)
	}
}
