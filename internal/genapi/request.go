package genapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// InputImage is a user photo attached to a prompt. It is sent as a
// multipart file part, never inside the JSON payload.
type InputImage struct {
	Name string
	MIME string
	Data []byte
}

type GenerationRequest struct {
	Model   string           `json:"model,omitempty"`
	Prompt  string           `json:"prompt"`
	Style   string           `json:"style,omitempty"`
	History []HistoryMessage `json:"history,omitempty"`
	Stream  bool             `json:"stream"`
	Image   *InputImage      `json:"-"`
}

// encode returns the request body and its content type: JSON when there is
// no image, multipart/form-data with "payload" and "image" parts otherwise.
func (r *GenerationRequest) encode() (io.Reader, string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	if r.Image == nil {
		return bytes.NewReader(payload), "application/json", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("payload", string(payload)); err != nil {
		return nil, "", fmt.Errorf("write payload field: %w", err)
	}

	name := r.Image.Name
	if name == "" {
		name = "image"
	}
	mimeType := r.Image.MIME
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	header.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(r.Image.Data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}
