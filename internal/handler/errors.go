package handler

import (
	"context"
	"errors"

	"github.com/set-night/pixchat/internal/domain"
	"github.com/set-night/pixchat/internal/genapi"
)

// errorBanner turns a failed turn into the text shown to the user.
func errorBanner(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "💳 You are out of credits. Check your balance: /credits"
	case errors.Is(err, domain.ErrStreamInProgress):
		return "⏳ Wait for the answer to the previous request."
	case errors.Is(err, domain.ErrEmptyPrompt):
		return "✏️ Send a text prompt or a photo."
	case errors.Is(err, domain.ErrNothingToRetry):
		return "🤷 There is nothing to retry."
	case errors.Is(err, domain.ErrStyleNotFound):
		return "🎨 The selected style is no longer available. Pick another one: /styles"
	case errors.Is(err, domain.ErrEmptyResponse):
		return "🤷 The model returned an empty answer."
	case errors.Is(err, genapi.ErrFrameTooLarge):
		return "❌ The response was too large to process."
	case errors.Is(err, context.DeadlineExceeded):
		return "⏳ The response took too long."
	}

	if apiErr, ok := genapi.AsAPIError(err); ok {
		switch {
		case apiErr.IsRateLimited():
			return "⏳ Too many requests to the image service. Try again later."
		case apiErr.IsUnavailable():
			return "❌ The image service is temporarily unavailable."
		case apiErr.StatusCode == 0 && apiErr.Message != "":
			return "❌ " + apiErr.Message
		}
	}
	return "❌ Something went wrong while generating."
}

// isUserError reports errors caused by the request itself rather than the
// backend; they are not sent to the ops log.
func isUserError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientCredits) ||
		errors.Is(err, domain.ErrStreamInProgress) ||
		errors.Is(err, domain.ErrEmptyPrompt) ||
		errors.Is(err, domain.ErrNothingToRetry) ||
		errors.Is(err, domain.ErrStyleNotFound)
}
