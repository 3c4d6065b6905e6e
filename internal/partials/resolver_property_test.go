//go:build property

package partials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestResolverProperties validates the substitution invariants of the resolver.
func TestResolverProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4321)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	baseDir := t.TempDir()
	partialsDir := filepath.Join(baseDir, "partials")
	if err := os.MkdirAll(partialsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	bodies := []string{"", "<nav>menu</nav>", "<footer>&copy; 2024</footer>\n", "<title>T</title>"}
	for i, body := range bodies {
		if err := os.WriteFile(filepath.Join(partialsDir, fmt.Sprintf("p%d.html", i)), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	resolver := NewResolver(nil)

	// Property: content without markers is returned unchanged
	properties.Property("no markers leaves content unchanged", prop.ForAll(
		func(content string) bool {
			if strings.Contains(content, "<!--") {
				return true
			}
			res, err := resolver.Resolve(context.Background(), content, baseDir, FailFast)
			return err == nil && res.Content == content
		},
		gen.AnyString(),
	))

	// Property: every resolvable marker is replaced and lengths add up
	properties.Property("resolvable markers are fully substituted", prop.ForAll(
		func(refs []int, fillers []string, quoted bool) bool {
			var doc strings.Builder
			markerLen, partialLen := 0, 0
			for i, ref := range refs {
				if i < len(fillers) {
					doc.WriteString(fillers[i])
				}
				name := fmt.Sprintf("p%d.html", ref)
				if quoted {
					name = `"` + name + `"`
				}
				marker := "<!-- include " + name + " -->"
				doc.WriteString(marker)
				markerLen += len(marker)
				partialLen += len(bodies[ref])
			}
			in := doc.String()

			res, err := resolver.Resolve(context.Background(), in, baseDir, FailFast)
			if err != nil {
				return false
			}
			return len(FindMarkers(res.Content)) == 0 &&
				res.Resolved == len(refs) &&
				len(res.Content) == len(in)-markerLen+partialLen
		},
		gen.SliceOf(gen.IntRange(0, len(bodies)-1)),
		gen.SliceOf(gen.AlphaString()),
		gen.Bool(),
	))

	// Property: unresolvable markers survive verbatim under ContinueOnError
	properties.Property("missing partials keep their markers", prop.ForAll(
		func(name string) bool {
			if name == "" {
				return true
			}
			marker := "<!-- include missing-" + name + ".html -->"
			res, err := resolver.Resolve(context.Background(), "<p>"+marker+"</p>", baseDir, ContinueOnError)
			return err == nil &&
				res.Content == "<p>"+marker+"</p>" &&
				len(res.Failures) == 1
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
