package fsutil

// FileStore provides an interface for file system operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// Exists reports whether path exists
	Exists(path string) (bool, error)

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// Remove removes a file or an empty directory
	Remove(path string) error

	// RemoveAll removes a path and any children it contains
	RemoveAll(path string) error

	// ListFiles returns the regular files under dir whose names end in one of exts.
	// An empty exts matches every file.
	ListFiles(dir string, exts ...string) ([]string, error)
}
