// Package audio provides the looping sound subsystem: the read-only asset
// source and players that satisfy the controller's audio driver contract.
package audio

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var (
	// ErrAudioUnavailable means the asset filesystem could not be mounted.
	ErrAudioUnavailable = errors.New("audio asset filesystem unavailable")
	// ErrNoAsset means the named asset is not on the mounted filesystem.
	ErrNoAsset = errors.New("audio asset not found")
)

// Source resolves asset names against a mounted directory.
type Source struct {
	dir  string
	fsys fs.FS
}

// Mount opens dir as the asset filesystem.
func Mount(dir string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrAudioUnavailable, "%s: %v", dir, err)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrAudioUnavailable, "%s is not a directory", dir)
	}
	return &Source{dir: dir, fsys: os.DirFS(dir)}, nil
}

// Resolve returns the on-disk path of the named asset.
func (s *Source) Resolve(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", errors.Wrapf(ErrNoAsset, "invalid name %q", name)
	}
	info, err := fs.Stat(s.fsys, name)
	if err != nil {
		return "", errors.Wrapf(ErrNoAsset, "%s", name)
	}
	if info.IsDir() {
		return "", errors.Wrapf(ErrNoAsset, "%s is a directory", name)
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

// Dir returns the mounted directory.
func (s *Source) Dir() string { return s.dir }
