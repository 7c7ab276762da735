// Package prefix performs the one-time registry configuration of a Wine
// prefix. Setup is idempotent through a marker file written only after
// every registry write succeeded.
package prefix

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/progress"
)

// Task is the progress task name used by Setup.
const Task = "prefix"

// MarkerFile marks a fully configured prefix.
const MarkerFile = ".rsjfw-setup"

const browserCommand = `C:\windows\system32\winebrowser.exe -nohome "%1"`

const (
	credentialKey = `HKCU\Software\Wine\Credential Manager`
	encryptionKey = "EncryptionKey"
)

// Registry is the subset of a Wine prefix Setup needs.
type Registry interface {
	RegistryAdd(ctx context.Context, key, name, typ, value string) error
	RegistryBinary(ctx context.Context, key, name string, data []byte) error
	RegistryExists(ctx context.Context, key, name string) (bool, error)
}

type write struct {
	key, name, typ, value string
}

// writes are applied in order on first setup.
var writes = []write{
	{`HKCU\Software\Wine\WineDbg`, "ShowCrashDialog", "REG_DWORD", "0"},
	{`HKCU\Software\Wine\X11 Driver`, "UseEGL", "REG_SZ", "Y"},
	{`HKCU\Software\Wine\DllOverrides`, "dxgi", "", "native"},
	{`HKCU\Software\Wine\DllOverrides`, "d3d11", "", "native"},
	{`HKCR\http\shell\open\command`, "", "", browserCommand},
	{`HKCR\https\shell\open\command`, "", "", browserCommand},
}

// IsConfigured reports whether dir carries the setup marker.
func IsConfigured(dir string) bool {
	return appdata.Exists(filepath.Join(dir, MarkerFile))
}

// Setup configures the prefix at dir unless it is already marked. Any
// failing write aborts without writing the marker, so the next run
// starts over.
func Setup(ctx context.Context, reg Registry, dir string, sink progress.Sink) error {
	if IsConfigured(dir) {
		sink.Finish(Task, "Prefix already configured")
		return nil
	}
	sink.Begin(Task, "Configuring prefix")

	if err := os.MkdirAll(dir, appdata.DirPermNormal); err != nil {
		return fmt.Errorf("creating prefix %s: %w", dir, err)
	}

	total := float64(len(writes) + 1)
	for i, w := range writes {
		sink.Report(Task, float64(i)/total, "Writing "+w.key)
		if err := reg.RegistryAdd(ctx, w.key, w.name, w.typ, w.value); err != nil {
			return fmt.Errorf("configuring prefix: %w", err)
		}
	}

	sink.Report(Task, float64(len(writes))/total, "Checking credential key")
	if err := ensureEncryptionKey(ctx, reg); err != nil {
		return fmt.Errorf("configuring prefix: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, MarkerFile), nil, appdata.FilePermNormal); err != nil {
		return fmt.Errorf("writing setup marker: %w", err)
	}
	sink.Finish(Task, "Prefix configured")
	return nil
}

func ensureEncryptionKey(ctx context.Context, reg Registry) error {
	ok, err := reg.RegistryExists(ctx, credentialKey, encryptionKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	key := make([]byte, 8)
	for i := range key {
		key[i] = byte(rand.IntN(256))
	}
	return reg.RegistryBinary(ctx, credentialKey, encryptionKey, key)
}

// Reset removes the setup marker so the next Setup rewrites every value.
func Reset(dir string) error {
	err := os.Remove(filepath.Join(dir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing setup marker: %w", err)
	}
	return nil
}
