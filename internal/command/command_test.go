package command

import (
	"context"
	"errors"
	"testing"
)

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "definitely-not-a-real-binary-vt")
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
