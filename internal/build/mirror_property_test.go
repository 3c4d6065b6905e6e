//go:build property

package build

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestMirrorProperties validates exclusion and idempotence of the asset mirror.
func TestMirrorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	dirNames := []string{"css", "scss", "img", "js", "fonts", "vendor"}

	// Property: excluded directory names never appear in the destination
	// and a second run leaves the destination unchanged
	properties.Property("mirror excludes and is idempotent", prop.ForAll(
		func(depths []int, contents []string) bool {
			src := t.TempDir()
			dest := t.TempDir()

			for i, depth := range depths {
				parts := make([]string, 0, depth+1)
				for d := 0; d < depth; d++ {
					parts = append(parts, dirNames[(i+d)%len(dirNames)])
				}
				parts = append(parts, "f"+strings.Repeat("x", i%5)+".txt")
				path := filepath.Join(append([]string{src}, parts...)...)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return false
				}
				body := ""
				if i < len(contents) {
					body = contents[i]
				}
				if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
					return false
				}
			}

			m := NewAssetMirror(nil, nil)
			if _, err := m.Mirror(context.Background(), src, dest, []string{"css", "scss"}); err != nil {
				return false
			}
			first := snapshot(t, dest)
			for rel := range first {
				for _, seg := range strings.Split(rel, "/") {
					if seg == "css" || seg == "scss" {
						return false
					}
				}
			}

			if _, err := m.Mirror(context.Background(), src, dest, []string{"css", "scss"}); err != nil {
				return false
			}
			return reflect.DeepEqual(first, snapshot(t, dest))
		},
		gen.SliceOfN(8, gen.IntRange(0, 3)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
