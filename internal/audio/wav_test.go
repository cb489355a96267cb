package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestWAV(t *testing.T, dir string, samples int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteWAVHeader(&buf, uint32(samples*2)); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	buf.Write(make([]byte, samples*2))
	path := filepath.Join(dir, "test.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write wav: %v", err)
	}
	return path
}

func TestOpenWAVReadsFrames(t *testing.T) {
	path := writeTestWAV(t, t.TempDir(), 10000)

	r, err := OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV failed: %v", err)
	}
	defer r.Close()

	if got := r.Duration(); got != 625*time.Millisecond {
		t.Errorf("Expected duration 625ms, got %v", got)
	}

	buf := make([]byte, 8000)
	var sizes []int
	for {
		n, err := r.ReadFrame(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		sizes = append(sizes, n)
	}

	want := []int{8000, 8000, 4000}
	if len(sizes) != len(want) {
		t.Fatalf("Expected frames %v, got %v", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, want[i], sizes[i])
		}
	}
}

func TestOpenWAVSkipsListChunk(t *testing.T) {
	var buf bytes.Buffer
	var header bytes.Buffer
	if err := WriteWAVHeader(&header, 4); err != nil {
		t.Fatal(err)
	}
	h := header.Bytes()
	buf.Write(h[:36])
	// odd-sized LIST chunk with pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.Write(h[36:44])
	buf.Write([]byte{1, 0, 2, 0})

	path := filepath.Join(t.TempDir(), "list.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV failed: %v", err)
	}
	defer r.Close()

	frame := make([]byte, 16)
	n, err := r.ReadFrame(frame)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(frame[:n], []byte{1, 0, 2, 0}) {
		t.Errorf("Unexpected payload %v", frame[:n])
	}
}

func TestOpenWAVRejectsWrongFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAVHeader(&buf, 0); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	// 44.1kHz
	binary.LittleEndian.PutUint32(raw[24:28], 44100)
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenWAV(path)
	if !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("Expected ErrInvalidWAV, got %v", err)
	}
}

func TestOpenWAVRejectsNonRIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("this is not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenWAV(path); !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("Expected ErrInvalidWAV, got %v", err)
	}
}

func TestOpenWAVMissingFile(t *testing.T) {
	if _, err := OpenWAV("nonexistent.wav"); err == nil {
		t.Error("Expected error when opening non-existent file")
	}
}
