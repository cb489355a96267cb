//go:build vosk

package transcriber

import (
	"context"
	"fmt"
	"os"

	vosk "github.com/alphacep/vosk-api/go"
)

// LocalModel decodes in-process with libvosk.
type LocalModel struct {
	model *vosk.VoskModel
}

// NewLocalModel loads the model directory at path.
func NewLocalModel(path string) (*LocalModel, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: model directory %q not found", ErrModelUnavailable, path)
	}

	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return &LocalModel{model: model}, nil
}

func (m *LocalModel) NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error) {
	rec, err := vosk.NewRecognizer(m.model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}
	return &localRecognizer{rec: rec}, nil
}

func (m *LocalModel) Close() error {
	m.model.Free()
	return nil
}

type localRecognizer struct {
	rec *vosk.VoskRecognizer
}

func (r *localRecognizer) AcceptWaveform(frame []byte) (bool, error) {
	switch r.rec.AcceptWaveform(frame) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("vosk rejected waveform")
	}
}

func (r *localRecognizer) Result() (string, error) {
	text, _, err := parseVoskResult([]byte(r.rec.Result()))
	return text, err
}

func (r *localRecognizer) FinalResult() (string, error) {
	text, _, err := parseVoskResult([]byte(r.rec.FinalResult()))
	return text, err
}

func (r *localRecognizer) Close() error {
	r.rec.Free()
	return nil
}
