package genapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrFrameTooLarge   = errors.New("stream frame exceeds size limit")
	ErrCreditsDisabled = errors.New("credits endpoint not configured")
	ErrImageTooLarge   = errors.New("image exceeds download limit")
)

// APIError is a non-2xx answer from the generation backend, or an error
// event delivered inside a stream (StatusCode is then 0).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("generation api: %s", e.Message)
	}
	return fmt.Sprintf("generation api: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// AsAPIError unwraps err into an *APIError if there is one in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := errorMessage(gjson.ParseBytes(body))
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

func errorMessage(doc gjson.Result) string {
	if !doc.IsObject() {
		return ""
	}
	e := doc.Get("error")
	switch {
	case e.IsObject():
		return e.Get("message").String()
	case e.Type == gjson.String:
		return e.String()
	}
	return ""
}
