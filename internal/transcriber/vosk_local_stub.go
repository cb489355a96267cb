//go:build !vosk

package transcriber

import (
	"context"
	"fmt"
)

// LocalModel is only available when built with -tags vosk.
type LocalModel struct{}

// NewLocalModel always fails without the vosk build tag.
func NewLocalModel(path string) (*LocalModel, error) {
	return nil, fmt.Errorf("%w: binary built without -tags vosk, use the vosk-server provider", ErrModelUnavailable)
}

func (m *LocalModel) NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error) {
	return nil, ErrModelUnavailable
}

func (m *LocalModel) Close() error {
	return nil
}
