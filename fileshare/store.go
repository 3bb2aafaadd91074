// Receiving store for GoLanShare
// Owns the temporary directory received files are written into. Files are
// stored under their wire file name; an existing file of the same name is
// replaced.
package fileshare

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultTempDir is where received files land when no directory is configured.
const DefaultTempDir = "./temp"

// StoreOpts holds configuration for a Store.
type StoreOpts struct {
	Root string     // Directory for received files
	FS   FileSystem // Filesystem to write through
}

// Store manages writable streams for incoming transfers.
type Store struct {
	StoreOpts
}

// NewStore creates a Store with the given options.
func NewStore(opts StoreOpts) *Store {
	if opts.Root == "" {
		opts.Root = DefaultTempDir
	}
	if opts.FS == nil {
		opts.FS = OSFileSystem{}
	}

	return &Store{StoreOpts: opts}
}

// Create opens a writable stream for fileName under the store root, creating
// the directory on first use. Any existing file of the same name is
// truncated. Returns the stream and the final path.
func (s *Store) Create(fileName string) (File, string, error) {
	if err := s.FS.MkdirAll(s.Root); err != nil {
		return nil, "", errors.Wrapf(err, "creating %s", s.Root)
	}

	// Strip any directory components a sender might smuggle into the name.
	path := filepath.Join(s.Root, filepath.Base(fileName))

	f, err := s.FS.Create(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "creating %s", path)
	}
	return f, path, nil
}
