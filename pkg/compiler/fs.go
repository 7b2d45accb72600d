package compiler

import "os"

// FileSystem is the filesystem service contract the compiler depends on:
// lastModified keeps Load lineage signatures stable across unchanged input
// files (and distinct after an edit), exists drives cache-catalogue
// hygiene, and delete cleans up dropped cache directories. The backing
// store is an external collaborator; OSFS is the local-disk default.
type FileSystem interface {
	LastModified(path string) (int64, error)
	Exists(path string) bool
	Delete(path string) error
}

// OSFS implements FileSystem against the local filesystem.
type OSFS struct{}

func (OSFS) LastModified(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixMilli(), nil
}

func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFS) Delete(path string) error { return os.RemoveAll(path) }

var _ FileSystem = OSFS{}
