package acquire

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amanullahtanweer/video-transcriber/internal/command"
)

const extractorOutput = "extracted.%(ext)s"

// ExtractorStrategy downloads with yt-dlp.
type ExtractorStrategy struct {
	path    string
	format  string
	retries int
	runner  command.Runner
}

// NewExtractorStrategy returns a yt-dlp strategy. retries is passed to yt-dlp
// as --retries.
func NewExtractorStrategy(path, format string, retries int, runner command.Runner) *ExtractorStrategy {
	if path == "" {
		path = "yt-dlp"
	}
	if format == "" {
		format = "bestaudio/best"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &ExtractorStrategy{path: path, format: format, retries: retries, runner: runner}
}

func (s *ExtractorStrategy) ID() StrategyID { return StrategyExtractor }

// Fetch runs yt-dlp and returns the final file path it prints.
func (s *ExtractorStrategy) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--newline",
		"-f", s.format,
		"--retries", strconv.Itoa(s.retries),
		"-o", filepath.Join(dir, extractorOutput),
		"--print", "after_move:filepath",
		"--", rawURL,
	}

	res, err := s.runner.Run(ctx, s.path, args...)
	if err != nil {
		partial := s.leftover(dir)
		if errors.Is(err, command.ErrNotFound) {
			return partial, wrap(KindToolMissing, err, "%s is not installed", s.path)
		}
		if ctx.Err() != nil {
			return partial, ctx.Err()
		}
		return partial, fmt.Errorf("yt-dlp exit %d: %s", res.ExitCode, extractorMessage(res.Stderr))
	}

	if path := lastNonEmptyLine(res.Stdout); path != "" {
		return path, nil
	}
	if path := s.leftover(dir); path != "" {
		return path, nil
	}
	return "", errorf(KindEmptyPayload, "yt-dlp reported success but wrote no file")
}

// leftover finds whatever yt-dlp wrote, including .part files.
func (s *ExtractorStrategy) leftover(dir string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, "extracted.*"))
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// extractorMessage prefers yt-dlp's ERROR: lines over the full stderr.
func extractorMessage(stderr string) string {
	var errs []string
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "ERROR:") {
			errs = append(errs, strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")))
		}
	}
	if len(errs) > 0 {
		return strings.Join(errs, "; ")
	}
	if line := lastNonEmptyLine(stderr); line != "" {
		return line
	}
	return "no diagnostic output"
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
