package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

func TestClassifyTyped(t *testing.T) {
	c := testClassifier(t)

	testCases := []struct {
		description string
		err         error
		want        ErrorKind
	}{
		{"explicit kind", errorf(KindMalformedResponse, "missing id"), KindMalformedResponse},
		{"wrapped explicit kind", fmt.Errorf("proxy: %w", errorf(KindEmptyPayload, "0 bytes")), KindEmptyPayload},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout},
		{"missing binary", &exec.Error{Name: "yt-dlp", Err: exec.ErrNotFound}, KindToolMissing},
		{"forbidden", &retry.StatusError{StatusCode: 403}, KindBlocked},
		{"too many requests", &retry.StatusError{StatusCode: 429}, KindBlocked},
		{"not found", &retry.StatusError{StatusCode: 404}, KindNotMedia},
		{"bad gateway", &retry.StatusError{StatusCode: 502}, KindNetwork},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.err))
		})
	}
}

func TestClassifyPhrases(t *testing.T) {
	c := testClassifier(t)

	testCases := []struct {
		text string
		want ErrorKind
	}{
		{"ERROR: [youtube] x: Private video. Sign in if you've been granted access", KindRestricted},
		{"ERROR: [youtube] x: Sign in to confirm your age", KindRestricted},
		{"ERROR: [youtube] x: Sign in to confirm you're not a bot", KindBlocked},
		{"ERROR: unable to download video data: HTTP Error 403: Forbidden", KindBlocked},
		{"read: connection timed out", KindTimeout},
		{"ERROR: Unsupported URL: https://example.com/page", KindNotMedia},
		{"invalid character '<' looking for beginning of value", KindMalformedResponse},
		{"ERROR: Unable to download webpage: <urlopen error [Errno -3] Temporary failure in name resolution>", KindNetwork},
		{"something nobody anticipated", KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(errors.New(tc.text)))
		})
	}
}

func TestClassifierRulesOrdered(t *testing.T) {
	rules := testClassifier(t).Rules()
	require.NotEmpty(t, rules)
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}
	assert.Equal(t, KindRestricted, rules[0].Kind)
}

func TestClassifierCustomFileAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	write := func(phrase string) {
		doc := "settings:\n  reload_on_change: true\nrules:\n  - kind: blocked\n    priority: 1\n    patterns:\n      - type: exact\n        phrases: [\"" + phrase + "\"]\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	}
	write("cloudflare")

	c, err := NewClassifier(path, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, KindBlocked, c.Classify(errors.New("Cloudflare challenge")))
	assert.Equal(t, KindUnknown, c.Classify(errors.New("akamai says no")))

	write("akamai")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	assert.Equal(t, KindBlocked, c.Classify(errors.New("akamai says no")))
}

func TestClassifierRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - kind: sunspots\n"), 0o644))
	_, err := NewClassifier(path, quietLogger())
	assert.Error(t, err)
}
