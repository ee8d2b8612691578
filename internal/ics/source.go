package ics

import (
	"errors"
	"io"
	"os"
)

// maxPayloadBytes caps a single calendar payload read from a reader.
const maxPayloadBytes = 16 << 20

var errPayloadTooLarge = errors.New("payload exceeds size limit")

// ReadFile reads a calendar export from disk. Failures are *IOError.
func ReadFile(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Source: path, Err: err}
	}
	return body, nil
}

// Read drains r (an upload body, stdin) into memory. source only labels
// the error.
func Read(r io.Reader, source string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxPayloadBytes+1))
	if err != nil {
		return nil, &IOError{Source: source, Err: err}
	}
	if len(body) > maxPayloadBytes {
		return nil, &IOError{Source: source, Err: errPayloadTooLarge}
	}
	return body, nil
}
