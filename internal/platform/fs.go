package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ReadSymlinkTarget returns the target of the symlink at path.
func ReadSymlinkTarget(path string) (string, error) {
	return os.Readlink(path)
}

// ReplaceSymlink points link at target. An existing link is swapped by
// rename, so readers see either the old or the new target. A link that
// already points at target is left alone. link may not be a directory.
func ReplaceSymlink(target, link string) error {
	if cur, err := os.Readlink(link); err == nil && cur == target {
		return nil
	}
	if info, err := os.Lstat(link); err == nil && info.IsDir() {
		return fmt.Errorf("%s is a directory", link)
	}

	tmp := filepath.Join(filepath.Dir(link), ".tmp-"+uuid.NewString())
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("creating symlink: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", link, err)
	}
	return nil
}

// MakeExecutable adds execute permission wherever path has read
// permission. Symlinks are followed.
func MakeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	want := mode | (mode&0444)>>2
	if want == mode {
		return nil
	}
	return os.Chmod(path, want)
}
