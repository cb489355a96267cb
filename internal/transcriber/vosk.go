package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// vosk-server compares the eof message literally.
const voskEOF = `{"eof" : 1}`

// VoskServerModel connects each recognizer to a vosk-server websocket.
type VoskServerModel struct {
	serverURL string
	dialer    *websocket.Dialer
}

// NewVoskServerModel checks that the server accepts connections before
// returning.
func NewVoskServerModel(ctx context.Context, serverURL string) (*VoskServerModel, error) {
	u, err := url.Parse(serverURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: invalid vosk server url %q", ErrModelUnavailable, serverURL)
	}

	m := &VoskServerModel{
		serverURL: serverURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}

	conn, _, err := m.dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Vosk server: %v", ErrModelUnavailable, err)
	}
	conn.Close()

	return m, nil
}

// NewRecognizer opens a dedicated connection and sends the sample rate.
func (m *VoskServerModel) NewRecognizer(ctx context.Context, sampleRate int) (Recognizer, error) {
	conn, _, err := m.dialer.DialContext(ctx, m.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Vosk server: %w", err)
	}

	handshake := map[string]any{"config": map[string]any{"sample_rate": sampleRate}}
	if err := conn.WriteJSON(handshake); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send Vosk config: %w", err)
	}

	return &voskServerRecognizer{conn: conn}, nil
}

// Close is a no-op; connections belong to recognizers.
func (m *VoskServerModel) Close() error {
	return nil
}

type voskServerRecognizer struct {
	conn   *websocket.Conn
	last   string
	closed bool
}

// AcceptWaveform sends one binary frame and reads the reply. vosk-server
// answers every frame with either a partial or a final result.
func (r *voskServerRecognizer) AcceptWaveform(frame []byte) (bool, error) {
	if r.closed {
		return false, errors.New("recognizer closed")
	}
	if err := r.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return false, fmt.Errorf("failed to send audio to Vosk: %w", err)
	}

	text, final, err := r.read()
	if err != nil {
		return false, err
	}
	if final {
		r.last = text
	}
	return final, nil
}

func (r *voskServerRecognizer) Result() (string, error) {
	return r.last, nil
}

// FinalResult sends eof and returns the flushed utterance.
func (r *voskServerRecognizer) FinalResult() (string, error) {
	if r.closed {
		return "", errors.New("recognizer closed")
	}
	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(voskEOF)); err != nil {
		return "", fmt.Errorf("failed to send EOF to Vosk: %w", err)
	}

	text, _, err := r.read()
	if err != nil {
		return "", err
	}
	return text, nil
}

func (r *voskServerRecognizer) read() (string, bool, error) {
	_, message, err := r.conn.ReadMessage()
	if err != nil {
		return "", false, fmt.Errorf("failed to read Vosk result: %w", err)
	}
	return parseVoskResult(message)
}

func (r *voskServerRecognizer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return r.conn.Close()
}
