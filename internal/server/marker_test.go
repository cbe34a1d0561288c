package server

import (
	"errors"
	"os"
	"testing"

	"github.com/allen1211/kvsd/internal/engine"
)

func TestEnsureEngineMarkerWritesOnFreshDir(t *testing.T) {
	dir, err := os.MkdirTemp("", "kvsd-marker-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if err := EnsureEngineMarker(dir, engine.Builtin); err != nil {
		t.Fatal(err)
	}
	if err := EnsureEngineMarker(dir, engine.Builtin); err != nil {
		t.Fatalf("second call with same engine should succeed, got %v", err)
	}
}

func TestEnsureEngineMarkerRejectsMismatch(t *testing.T) {
	dir, err := os.MkdirTemp("", "kvsd-marker-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if err := EnsureEngineMarker(dir, engine.Builtin); err != nil {
		t.Fatal(err)
	}
	if err := EnsureEngineMarker(dir, engine.LevelDB); !errors.Is(err, ErrEngineMismatch) {
		t.Fatalf("err = %v, want ErrEngineMismatch", err)
	}
}
