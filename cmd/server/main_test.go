package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/video-transcriber/internal/config"
	"github.com/amanullahtanweer/video-transcriber/internal/transcriber"
)

type closeTracker struct{ closed int }

func (m *closeTracker) NewRecognizer(ctx context.Context, sampleRate int) (transcriber.Recognizer, error) {
	return nil, errors.New("not used")
}

func (m *closeTracker) Close() error {
	m.closed++
	return nil
}

func TestRunClosesModelWhenStartupFails(t *testing.T) {
	model := &closeTracker{}
	orig := openModel
	openModel = func(ctx context.Context, cfg config.DecoderConfig) (transcriber.Model, error) {
		return model, nil
	}
	t.Cleanup(func() { openModel = orig })

	// Nothing listens on port 1, so the job store cannot connect.
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  redis_url: redis://127.0.0.1:1/0\n"), 0o600))

	err := run(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job store")
	assert.Equal(t, 1, model.closed)
}

func TestRunReportsBadConfig(t *testing.T) {
	err := run(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load config")
}
