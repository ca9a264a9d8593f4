package genapi

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxFrameSize bounds a single stream line. Image payloads arrive base64
// encoded inside one frame, so this is far larger than a text delta.
const MaxFrameSize = 16 << 20

var (
	dataField = []byte("data")
	doneFrame = []byte("[DONE]")
)

// SSEReader splits a server-sent-event body into data payloads, one per
// "data:" line. Comments and the event/id/retry fields are skipped.
type SSEReader struct {
	reader  *bufio.Reader
	maxSize int
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader:  bufio.NewReaderSize(r, 64<<10),
		maxSize: MaxFrameSize,
	}
}

// Next returns the next data payload, or io.EOF at the end of the body.
func (s *SSEReader) Next() ([]byte, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		// Bare JSON lines (NDJSON) are accepted as data.
		if line[0] == '{' {
			return line, nil
		}
		field, value, found := bytes.Cut(line, []byte(":"))
		if !found || !bytes.Equal(field, dataField) {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if len(value) == 0 {
			continue
		}
		return value, nil
	}
}

func (s *SSEReader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(buf)+len(chunk) > s.maxSize {
			return nil, ErrFrameTooLarge
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

func isDone(payload []byte) bool {
	return bytes.Equal(bytes.TrimSpace(payload), doneFrame)
}
