package config

import "path/filepath"

// Fixed directory names below the source and output roots.
const (
	HTMLDirName     = "html"
	PartialsDirName = "partials"
	AssetsDirName   = "assets"
	StylesDirName   = "scss"
	CSSDirName      = "css"
	ScriptsDirName  = "js"
	LibsDirName     = "libs"
)

// Layout resolves every source and output location from the two roots.
type Layout struct {
	SourceRoot string
	OutputRoot string
}

// NewLayout returns the layout for the given roots.
func NewLayout(sourceRoot, outputRoot string) Layout {
	return Layout{
		SourceRoot: filepath.Clean(sourceRoot),
		OutputRoot: filepath.Clean(outputRoot),
	}
}

// Pages is the directory holding top-level HTML documents.
func (l Layout) Pages() string { return filepath.Join(l.SourceRoot, HTMLDirName) }

// Partials is the directory holding include fragments.
func (l Layout) Partials() string { return filepath.Join(l.Pages(), PartialsDirName) }

func (l Layout) Assets() string  { return filepath.Join(l.SourceRoot, AssetsDirName) }
func (l Layout) Styles() string  { return filepath.Join(l.Assets(), StylesDirName) }
func (l Layout) Scripts() string { return filepath.Join(l.Assets(), ScriptsDirName) }

func (l Layout) HTMLOut() string    { return filepath.Join(l.OutputRoot, HTMLDirName) }
func (l Layout) AssetsOut() string  { return filepath.Join(l.OutputRoot, AssetsDirName) }
func (l Layout) CSSOut() string     { return filepath.Join(l.AssetsOut(), CSSDirName) }
func (l Layout) ScriptsOut() string { return filepath.Join(l.AssetsOut(), ScriptsDirName) }
func (l Layout) LibsOut() string    { return filepath.Join(l.AssetsOut(), LibsDirName) }
