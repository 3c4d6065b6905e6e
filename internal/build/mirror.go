package build

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
)

// MirrorStats counts what a Mirror call touched.
type MirrorStats struct {
	Files   int
	Dirs    int
	Skipped int
	Bytes   int64
}

func (s *MirrorStats) add(o *MirrorStats) {
	s.Files += o.Files
	s.Dirs += o.Dirs
	s.Skipped += o.Skipped
	s.Bytes += o.Bytes
}

// AssetMirror copies directory trees into the output root.
type AssetMirror struct {
	logger   logging.Logger
	recorder Recorder
}

// NewAssetMirror creates an asset mirror.
func NewAssetMirror(logger logging.Logger, recorder Recorder) *AssetMirror {
	if logger == nil {
		logger = logging.Discard()
	}
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &AssetMirror{logger: logger.WithComponent("mirror"), recorder: recorder}
}

// Mirror recursively copies srcDir into destDir. Directories whose name is
// in excluded are skipped at any depth, files are overwritten byte for
// byte and nothing already in destDir is removed. A failing entry is
// logged and the walk continues; all failures are joined into the
// returned error.
func (m *AssetMirror) Mirror(ctx context.Context, srcDir, destDir string, excluded []string) (*MirrorStats, error) {
	skip := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		skip[name] = true
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &MirrorStats{}, siteerrors.NewIOError(siteerrors.CodeMkdirFailed, destDir, err)
	}

	stats := &MirrorStats{}
	var errs []error
	if err := m.mirrorDir(ctx, srcDir, destDir, skip, stats, &errs); err != nil {
		return stats, err
	}
	m.recorder.AddFilesCopied(stats.Files)

	return stats, errors.Join(errs...)
}

// mirrorDir returns only context errors; per-entry failures go to errs.
func (m *AssetMirror) mirrorDir(ctx context.Context, src, dest string, skip map[string]bool, stats *MirrorStats, errs *[]error) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		m.fail(ctx, errs, siteerrors.NewIOError(siteerrors.CodeReadFailed, src, err))
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(src, entry.Name())
		destPath := filepath.Join(dest, entry.Name())

		// Stat follows symlinks so linked directories are mirrored as content.
		info, err := os.Stat(srcPath)
		if err != nil {
			m.fail(ctx, errs, siteerrors.NewIOError(siteerrors.CodeReadFailed, srcPath, err))
			continue
		}

		if info.IsDir() {
			if skip[entry.Name()] {
				stats.Skipped++
				continue
			}
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				m.fail(ctx, errs, siteerrors.NewIOError(siteerrors.CodeMkdirFailed, destPath, err))
				continue
			}
			stats.Dirs++
			if err := m.mirrorDir(ctx, srcPath, destPath, skip, stats, errs); err != nil {
				return err
			}
			continue
		}

		n, err := copyFile(srcPath, destPath, info.Mode().Perm())
		if err != nil {
			m.fail(ctx, errs, siteerrors.NewIOError(siteerrors.CodeCopyFailed, srcPath, err))
			continue
		}
		stats.Files++
		stats.Bytes += n
	}

	return nil
}

func (m *AssetMirror) fail(ctx context.Context, errs *[]error, err *siteerrors.SiteError) {
	siteerrors.Report(ctx, m.logger, err, "Failed to mirror entry")
	*errs = append(*errs, err)
}

// copyFile copies src over dest, truncating any existing file.
func copyFile(src, dest string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o200)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
