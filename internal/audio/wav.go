package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrInvalidWAV is wrapped by every header validation failure in OpenWAV.
var ErrInvalidWAV = errors.New("invalid wav")

// WAVReader streams the PCM payload of a normalized WAV file.
type WAVReader struct {
	file       *os.File
	data       io.Reader
	dataBytes  int64
	sampleRate int
}

// OpenWAV opens path and positions the reader at the start of the data
// chunk. Only PCM 16-bit mono 16kHz is accepted.
func OpenWAV(path string) (*WAVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, err := newWAVReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

func newWAVReader(file *os.File) (*WAVReader, error) {
	// RIFF header
	header := make([]byte, 12)
	if _, err := io.ReadFull(file, header); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrInvalidWAV, err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidWAV)
	}

	var (
		sawFormat  bool
		sampleRate int
	)
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(file, chunk); err != nil {
			return nil, fmt.Errorf("%w: no data chunk: %v", ErrInvalidWAV, err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(file, body); err != nil {
				return nil, fmt.Errorf("%w: failed to read fmt chunk: %v", ErrInvalidWAV, err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 || channels != Channels || sampleRate != SampleRate {
				return nil, fmt.Errorf("%w: want PCM 16-bit mono %dHz, got format=%d bits=%d channels=%d rate=%d",
					ErrInvalidWAV, SampleRate, format, bits, channels, sampleRate)
			}
			sawFormat = true
			if size%2 == 1 {
				if _, err := file.Seek(1, io.SeekCurrent); err != nil {
					return nil, err
				}
			}
		case "data":
			if !sawFormat {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			// ffmpeg writes 0xFFFFFFFF when it cannot seek back to patch sizes.
			var data io.Reader = file
			if size != 0xFFFFFFFF {
				data = io.LimitReader(file, size)
			} else {
				size = -1
			}
			return &WAVReader{file: file, data: data, dataBytes: size, sampleRate: sampleRate}, nil
		default:
			// LIST, fact and friends
			if _, err := file.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w: failed to skip %q chunk: %v", ErrInvalidWAV, id, err)
			}
		}
	}
}

// ReadFrame fills buf with up to len(buf) bytes of PCM and returns the number
// of bytes read. It returns io.EOF once the data chunk is exhausted.
func (r *WAVReader) ReadFrame(buf []byte) (int, error) {
	n, err := io.ReadFull(r.data, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Short final frame.
		if n%2 == 1 {
			n--
		}
		return n, nil
	}
	return n, err
}

// Duration is the audio length derived from the data chunk size. It is zero
// when the size was not recorded.
func (r *WAVReader) Duration() time.Duration {
	if r.dataBytes < 0 {
		return 0
	}
	samples := r.dataBytes / 2
	return time.Duration(samples) * time.Second / time.Duration(r.sampleRate)
}

// Close releases the underlying file.
func (r *WAVReader) Close() error {
	return r.file.Close()
}

// WriteWAVHeader writes a canonical 44-byte PCM header for dataBytes of
// 16-bit mono samples at SampleRate.
func WriteWAVHeader(w io.Writer, dataBytes uint32) error {
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataBytes)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], Channels)
	binary.LittleEndian.PutUint32(header[24:28], SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], SampleRate*Channels*2)
	binary.LittleEndian.PutUint16(header[32:34], Channels*2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataBytes)
	_, err := w.Write(header)
	return err
}
