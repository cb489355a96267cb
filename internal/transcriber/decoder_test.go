package transcriber

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/amanullahtanweer/video-transcriber/internal/audio"
)

// scriptedRecognizer finalizes "word<N>" every finalEvery frames.
type scriptedRecognizer struct {
	frames     int
	finalEvery int
	failAt     int
	final      string
	sizes      []int
	closed     bool
	flushed    bool
}

func (r *scriptedRecognizer) AcceptWaveform(frame []byte) (bool, error) {
	r.frames++
	r.sizes = append(r.sizes, len(frame))
	if r.failAt > 0 && r.frames == r.failAt {
		return false, errors.New("connection reset")
	}
	return r.finalEvery > 0 && r.frames%r.finalEvery == 0, nil
}

func (r *scriptedRecognizer) Result() (string, error) {
	return "word" + string(rune('0'+r.frames/r.finalEvery)), nil
}

func (r *scriptedRecognizer) FinalResult() (string, error) {
	r.flushed = true
	return r.final, nil
}

func (r *scriptedRecognizer) Close() error {
	r.closed = true
	return nil
}

type fakeModel struct {
	rec *scriptedRecognizer
	err error
}

func (m *fakeModel) NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rec, nil
}

func (m *fakeModel) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeWAV(t *testing.T, samples int) audio.Normalized {
	t.Helper()
	var buf bytes.Buffer
	if err := audio.WriteWAVHeader(&buf, uint32(samples*2)); err != nil {
		t.Fatal(err)
	}
	buf.Write(make([]byte, samples*2))
	path := filepath.Join(t.TempDir(), "normalized-16k-mono.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return audio.Normalized{Path: path, SampleRate: audio.SampleRate, Channels: audio.Channels}
}

func TestDecodeCollectsUtterancesInOrder(t *testing.T) {
	in := writeWAV(t, 4000*4+1000)
	rec := &scriptedRecognizer{finalEvery: 2, final: " tail "}

	got, err := NewDecoder(&fakeModel{rec: rec}, 4000, quietLogger()).Decode(context.Background(), in)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if got.Text != "word1 word2 tail" {
		t.Errorf("Expected 'word1 word2 tail', got %q", got.Text)
	}
	if got.Utterances != 3 {
		t.Errorf("Expected 3 utterances, got %d", got.Utterances)
	}
	if got.Frames != 5 {
		t.Errorf("Expected 5 frames, got %d", got.Frames)
	}
	want := []int{8000, 8000, 8000, 8000, 2000}
	for i, size := range want {
		if rec.sizes[i] != size {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, size, rec.sizes[i])
		}
	}
	if !rec.closed {
		t.Error("Recognizer should be closed")
	}
}

func TestDecodeSilenceYieldsEmptyText(t *testing.T) {
	in := writeWAV(t, 16000)
	rec := &scriptedRecognizer{}

	got, err := NewDecoder(&fakeModel{rec: rec}, 0, quietLogger()).Decode(context.Background(), in)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Text != "" {
		t.Errorf("Expected empty text, got %q", got.Text)
	}
	if !rec.flushed {
		t.Error("Expected FinalResult to be called")
	}
}

func TestDecodeRecognizerErrorReturnsPartialText(t *testing.T) {
	in := writeWAV(t, 4000*6)
	rec := &scriptedRecognizer{finalEvery: 2, failAt: 3}

	got, err := NewDecoder(&fakeModel{rec: rec}, 4000, quietLogger()).Decode(context.Background(), in)
	if err != nil {
		t.Fatalf("Decode should not fail on recognizer errors: %v", err)
	}
	if got.Text != "word1" {
		t.Errorf("Expected partial text 'word1', got %q", got.Text)
	}
	if got.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", got.Errors)
	}
	if got.Unavailable {
		t.Error("A recognizer that started should not be reported unavailable")
	}
}

func TestDecodeRecognizerUnavailable(t *testing.T) {
	in := writeWAV(t, 4000)

	got, err := NewDecoder(&fakeModel{err: errors.New("dial refused")}, 4000, quietLogger()).Decode(context.Background(), in)
	if err != nil {
		t.Fatalf("Decode should not fail: %v", err)
	}
	if got.Text != "" || got.Errors != 1 || !got.Unavailable {
		t.Errorf("Unexpected decoding %+v", got)
	}
}

func TestDecodeCanceled(t *testing.T) {
	in := writeWAV(t, 4000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDecoder(&fakeModel{rec: &scriptedRecognizer{}}, 4000, quietLogger()).Decode(ctx, in)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDecodeInvalidWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewDecoder(&fakeModel{rec: &scriptedRecognizer{}}, 4000, quietLogger()).Decode(context.Background(), audio.Normalized{Path: path, SampleRate: 16000, Channels: 1})
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("Expected ErrInvalidWAV, got %v", err)
	}
}
