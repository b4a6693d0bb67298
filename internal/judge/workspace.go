package judge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"code-judge/internal/runtime"
)

const workspacePrefix = "judge-"

// workspace is the scoped directory owned by one judging call.
type workspace struct {
	dir string
}

// newWorkspace creates a fresh directory under root, or under the OS temp
// dir when root is empty. The name embeds the execution ID so a leftover
// directory can be traced back to its log lines.
func newWorkspace(root, execID string) (*workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	dir, err := os.MkdirTemp(root, workspacePrefix+execID+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &workspace{dir: dir}, nil
}

// write stores the generated harness files.
func (w *workspace) write(files []runtime.File) error {
	for _, f := range files {
		if !filepath.IsLocal(f.Name) {
			return fmt.Errorf("harness file %q escapes the workspace", f.Name)
		}
		path := filepath.Join(w.dir, f.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		// #nosec G306 -- read by the unprivileged sandbox user
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

func (w *workspace) remove() {
	if err := os.RemoveAll(w.dir); err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("failed to remove workspace")
	}
}

// CleanupWorkspaces removes workspace directories under root that are older
// than olderThan. They are left behind only when the judging process died
// mid-call.
func CleanupWorkspaces(root string, olderThan time.Duration) (int, error) {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("list work root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	cleaned := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("failed to remove stale workspace")
			continue
		}
		cleaned++
	}
	return cleaned, nil
}
