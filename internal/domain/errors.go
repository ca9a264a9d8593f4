package domain

import "errors"

var (
	ErrHistoryNotFound     = errors.New("chat history not found")
	ErrGalleryItemNotFound = errors.New("gallery item not found")
	ErrStreamInProgress    = errors.New("a response is still streaming")
	ErrNothingToRetry      = errors.New("nothing to retry")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrStyleNotFound       = errors.New("style not found")
	ErrEmptyPrompt         = errors.New("empty prompt")
	ErrImageNotCached      = errors.New("image not cached")
	ErrEmptyResponse       = errors.New("generation returned no content")
)
