package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/allen1211/kvsd/internal/engine"
	"github.com/allen1211/kvsd/pkg/fsutil"
)

// markerFile records which engine realization owns a data directory, so a
// later run with a different --engine flag fails loudly instead of
// silently reading a directory laid out by the other engine (spec §4.E).
const markerFile = "ENGINE"

// ErrEngineMismatch is returned by EnsureEngineMarker when the data
// directory's recorded engine differs from the one being opened.
var ErrEngineMismatch = errors.New("data directory was created by a different engine")

// EnsureEngineMarker checks dir's marker against want, writing a fresh
// marker if dir has none yet. It is fatal for the caller to proceed past
// ErrEngineMismatch: the two engines use incompatible on-disk layouts.
func EnsureEngineMarker(dir string, want engine.Name) error {
	if err := fsutil.CheckAndMkdir(dir); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	path := filepath.Join(dir, markerFile)
	contents, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading engine marker: %w", err)
		}
		return os.WriteFile(path, []byte(string(want)), 0644)
	}
	got := engine.Name(strings.TrimSpace(string(contents)))
	if got != want {
		return fmt.Errorf("%w: directory %s belongs to %q, requested %q", ErrEngineMismatch, dir, got, want)
	}
	return nil
}
