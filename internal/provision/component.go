package provision

import (
	"path"
	"path/filepath"

	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/platform"
)

// Source names where a component comes from.
type Source string

const (
	SourceSystem   Source = "System"
	SourceCustom   Source = "Custom"
	SourceVinegar  Source = "Vinegar"
	SourceProtonGE Source = "ProtonGE"
	SourceOfficial Source = "Official"
	SourceSarek    Source = "Sarek"
)

// Latest requests the newest available release.
const Latest = "Latest"

// Repo is one row of a component's source table.
type Repo struct {
	Repository    string
	AssetFilter   string
	FolderPattern string
	// Exclude rejects staging folders that match FolderPattern but belong
	// to another source.
	Exclude string
}

// Component describes a provisionable runtime component.
type Component struct {
	Name    string
	Staging string
	// Layouts lists the binary paths, relative to a root, that prove a
	// root is usable. Any one of them suffices.
	Layouts []string
	Sources map[Source]Repo
}

var wineSources = map[Source]Repo{
	SourceVinegar:  {Repository: "vinegarhq/wine-builds", AssetFilter: "wine-", FolderPattern: "wine-"},
	SourceProtonGE: {Repository: "GloriousEggroll/proton-ge-custom", AssetFilter: ".tar.gz", FolderPattern: "GE-Proton"},
}

var dxvkSources = map[Source]Repo{
	SourceOfficial: {Repository: "doitsujin/dxvk", AssetFilter: ".tar.gz", FolderPattern: "dxvk-", Exclude: "sarek"},
	SourceSarek:    {Repository: "pythonlover02/DXVK-Sarek", AssetFilter: ".tar.gz", FolderPattern: "dxvk-sarek"},
}

// Wine returns the Wine component staged under layout.
func Wine(layout appdata.Layout) Component {
	return Component{
		Name:    "wine",
		Staging: layout.Wine(),
		Layouts: []string{"bin/wine", "files/bin/wine"},
		Sources: wineSources,
	}
}

// DXVK returns the DXVK component staged under layout.
func DXVK(layout appdata.Layout) Component {
	return Component{
		Name:    "dxvk",
		Staging: layout.Dxvk(),
		Layouts: []string{"x64/dxgi.dll", "x32/dxgi.dll"},
		Sources: dxvkSources,
	}
}

// Valid reports whether root holds the component's binary under one of
// its known layouts.
func (c Component) Valid(root string) bool {
	if root == "" {
		return false
	}
	for _, rel := range c.Layouts {
		if appdata.Exists(filepath.Join(root, filepath.FromSlash(rel))) {
			return true
		}
	}
	return false
}

// fixPermissions marks the binaries of root executable. Zip archives
// carry no mode bits.
func (c Component) fixPermissions(root string) error {
	for _, rel := range c.Layouts {
		if path.Base(path.Dir(rel)) != "bin" {
			continue
		}
		bin := filepath.Join(root, filepath.FromSlash(rel))
		if !appdata.Exists(bin) {
			continue
		}
		if err := platform.MakeExecutable(bin); err != nil {
			return err
		}
	}
	return nil
}

// Repo returns the source table row for s.
func (c Component) Repo(s Source) (Repo, bool) {
	r, ok := c.Sources[s]
	return r, ok
}

// SourceNames lists the downloadable sources of c.
func (c Component) SourceNames() []Source {
	var out []Source
	for _, s := range []Source{SourceVinegar, SourceProtonGE, SourceOfficial, SourceSarek} {
		if _, ok := c.Sources[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
