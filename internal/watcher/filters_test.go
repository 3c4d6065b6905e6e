package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtFilter(t *testing.T) {
	f := ExtFilter(".scss", ".sass")
	assert.True(t, f("src/assets/scss/styles.scss"))
	assert.True(t, f("src/assets/scss/_vars.sass"))
	assert.False(t, f("src/assets/scss/styles.css"))
	assert.False(t, f("src/assets/scss"))
}

func TestDirectChildFilter(t *testing.T) {
	pages := filepath.Join("src", "html")
	f := DirectChildFilter(pages)
	assert.True(t, f(filepath.Join(pages, "index.html")))
	assert.True(t, f("./src/html/about.html"))
	assert.False(t, f(filepath.Join(pages, "partials", "nav.html")))
	assert.False(t, f(filepath.Join("src", "index.html")))
}

func TestNoHiddenFilter(t *testing.T) {
	tests := map[string]bool{
		"partials/nav.html":    true,
		"partials/.nav.html":   false,
		"partials/nav.html~":   false,
		"partials/.nav.swp":    false,
		"partials/nav.swx":     false,
		"partials/#nav.html#":  false,
		"partials/.DS_Store":   false,
		"partials/Thumbs.db":   false,
		"partials/4913":        false,
		"partials/footer.html": true,
	}

	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, NoHiddenFilter(path))
		})
	}
}
