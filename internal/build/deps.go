package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	siteerrors "github.com/conneroisu/devsite/internal/errors"
	"github.com/conneroisu/devsite/internal/logging"
)

// Manifest is the subset of package.json read by the dependency step.
type Manifest struct {
	Dependencies map[string]string `json:"dependencies"`
}

// Names returns the dependency names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, siteerrors.NewIOError(siteerrors.CodeReadFailed, path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, siteerrors.NewBuildError(siteerrors.CodeManifestInvalid, "invalid dependency manifest", err).WithFile(path)
	}
	return &m, nil
}

// DependencyMirror copies the distributables of declared dependencies into
// the output libs directory.
type DependencyMirror struct {
	mirror      *AssetMirror
	logger      logging.Logger
	concurrency int
}

// NewDependencyMirror creates a dependency mirror copying at most
// concurrency packages at a time.
func NewDependencyMirror(mirror *AssetMirror, logger logging.Logger, concurrency int) *DependencyMirror {
	if logger == nil {
		logger = logging.Discard()
	}
	if mirror == nil {
		mirror = NewAssetMirror(logger, nil)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &DependencyMirror{
		mirror:      mirror,
		logger:      logger.WithComponent("deps"),
		concurrency: concurrency,
	}
}

// Mirror copies <modulesDir>/<dep>/dist, or the whole <modulesDir>/<dep>
// when it has no dist directory, to <libsDir>/<dep> for every dependency
// in the manifest. A missing manifest skips the step.
func (d *DependencyMirror) Mirror(ctx context.Context, manifestPath, modulesDir, libsDir string) (*MirrorStats, error) {
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn(ctx, nil, "Dependency manifest not found, skipping", "manifest", manifestPath)
			return &MirrorStats{}, nil
		}
		return nil, err
	}

	var (
		mu    sync.Mutex
		total = &MirrorStats{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, name := range manifest.Names() {
		g.Go(func() error {
			stats, err := d.copyDependency(gctx, name, modulesDir, libsDir)
			if stats != nil {
				mu.Lock()
				total.add(stats)
				mu.Unlock()
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return total, err
	}

	d.logger.Info(ctx, "Dependencies mirrored",
		"dependencies", len(manifest.Dependencies),
		"files", total.Files,
	)
	return total, nil
}

func (d *DependencyMirror) copyDependency(ctx context.Context, name, modulesDir, libsDir string) (*MirrorStats, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return nil, siteerrors.NewBuildError(siteerrors.CodeManifestInvalid,
			fmt.Sprintf("invalid dependency name %q", name), nil)
	}

	pkgDir := filepath.Join(modulesDir, name)
	if info, err := os.Stat(pkgDir); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return nil, siteerrors.NewBuildError(siteerrors.CodeDependencyMissing,
			fmt.Sprintf("dependency %q is not installed", name), err).WithFile(pkgDir)
	}

	src := pkgDir
	if info, err := os.Stat(filepath.Join(pkgDir, "dist")); err == nil && info.IsDir() {
		src = filepath.Join(pkgDir, "dist")
	}

	d.logger.Debug(ctx, "Mirroring dependency", "dependency", name, "source", src)
	return d.mirror.Mirror(ctx, src, filepath.Join(libsDir, name), nil)
}
