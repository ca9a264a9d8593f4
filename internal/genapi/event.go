package genapi

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type EventType int

const (
	EventText EventType = iota + 1
	EventImage
	EventCredits
	EventDone
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventImage:
		return "image"
	case EventCredits:
		return "credits"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ImagePayload is an image returned by the backend, inline or by reference.
type ImagePayload struct {
	B64  string
	URL  string
	MIME string
}

type Event struct {
	Type    EventType
	Delta   string
	Image   ImagePayload
	Credits decimal.Decimal
	Message string
}

// ParseEvent decodes one JSON payload into the events it carries. A single
// frame may hold a text delta, images and a credits update at once.
func ParseEvent(data []byte) ([]Event, error) {
	if isDone(data) {
		return []Event{{Type: EventDone}}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid event payload: %.64q", data)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("event payload is not an object: %.64q", data)
	}

	if msg := errorMessage(doc); msg != "" {
		return []Event{{Type: EventError, Message: msg}}, nil
	}

	var events []Event

	if text := firstString(doc, "delta", "text", "choices.0.delta.content", "choices.0.message.content"); text != "" {
		events = append(events, Event{Type: EventText, Delta: text})
	}

	for _, img := range parseImages(doc) {
		events = append(events, Event{Type: EventImage, Image: img})
	}

	if c := doc.Get("credits_remaining"); c.Exists() {
		credits, err := decimal.NewFromString(c.String())
		if err != nil {
			return nil, fmt.Errorf("parse credits_remaining %q: %w", c.String(), err)
		}
		events = append(events, Event{Type: EventCredits, Credits: credits})
	}

	if doc.Get("type").String() == "done" || doc.Get("done").Bool() ||
		doc.Get("choices.0.finish_reason").Type == gjson.String {
		events = append(events, Event{Type: EventDone})
	}

	return events, nil
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := doc.Get(p); r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

func parseImages(doc gjson.Result) []ImagePayload {
	var out []ImagePayload
	add := func(r gjson.Result, fallbackMIME string) {
		switch {
		case r.Type == gjson.String && r.String() != "":
			out = append(out, ImagePayload{B64: r.String(), MIME: fallbackMIME})
		case r.IsObject():
			img := ImagePayload{
				B64:  firstString(r, "b64_json", "b64", "data"),
				URL:  r.Get("url").String(),
				MIME: firstString(r, "mime_type", "mime"),
			}
			if img.MIME == "" {
				img.MIME = fallbackMIME
			}
			if img.B64 != "" || img.URL != "" {
				out = append(out, img)
			}
		}
	}

	topMIME := firstString(doc, "mime_type", "mime")
	add(doc.Get("image"), topMIME)
	if b := doc.Get("b64_json"); b.Type == gjson.String {
		add(b, topMIME)
	}
	for _, key := range []string{"images", "data"} {
		if arr := doc.Get(key); arr.IsArray() {
			arr.ForEach(func(_, v gjson.Result) bool {
				add(v, topMIME)
				return true
			})
		}
	}
	return out
}
