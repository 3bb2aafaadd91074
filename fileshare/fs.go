// Filesystem abstraction for GoLanShare
// The file layer never touches the host filesystem directly; it goes through
// this seam so tests can substitute an in-memory variant.
package fileshare

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// File is the byte-stream surface the file layer needs from an open file:
// sequential reads for sending, positioned writes for receiving.
type File interface {
	io.ReadWriteSeeker
	io.Closer
}

// FileSystem opens files, creates directories, and answers size queries.
type FileSystem interface {
	// Open opens an existing file for reading.
	Open(name string) (File, error)
	// Create opens a file for writing, truncating any existing content.
	Create(name string) (File, error)
	// MkdirAll creates a directory path, including parents.
	MkdirAll(path string) error
	// Stat returns the size of an existing file.
	Stat(name string) (int64, error)
}

// OSFileSystem is the production FileSystem backed by the os package.
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (File, error) {
	return os.Open(name)
}

func (OSFileSystem) Create(name string) (File, error) {
	return os.Create(name)
}

func (OSFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, os.ModePerm)
}

func (OSFileSystem) Stat(name string) (int64, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// MemFileSystem keeps every file in memory. Safe for concurrent use.
type MemFileSystem struct {
	mu    sync.Mutex
	files map[string]*memNode
}

// NewMemFileSystem returns an empty in-memory filesystem.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string]*memNode)}
}

// WriteFile seeds a file with content, creating it if needed.
func (fs *MemFileSystem) WriteFile(name string, data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[name] = &memNode{data: append([]byte(nil), data...)}
}

// ReadFile returns a copy of a file's current content.
func (fs *MemFileSystem) ReadFile(name string) ([]byte, error) {
	fs.mu.Lock()
	node, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("file %q does not exist", name)
	}

	node.mu.Lock()
	defer node.mu.Unlock()
	return append([]byte(nil), node.data...), nil
}

func (fs *MemFileSystem) Open(name string) (File, error) {
	fs.mu.Lock()
	node, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("file %q does not exist", name)
	}
	return &memFile{node: node}, nil
}

func (fs *MemFileSystem) Create(name string) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, ok := fs.files[name]
	if !ok {
		node = &memNode{}
		fs.files[name] = node
	}

	node.mu.Lock()
	node.data = nil
	node.mu.Unlock()

	return &memFile{node: node}, nil
}

func (fs *MemFileSystem) MkdirAll(string) error {
	return nil
}

func (fs *MemFileSystem) Stat(name string) (int64, error) {
	fs.mu.Lock()
	node, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return 0, errors.Errorf("file %q does not exist", name)
	}

	node.mu.Lock()
	defer node.mu.Unlock()
	return int64(len(node.data)), nil
}

// memNode is the shared backing content of one in-memory file.
type memNode struct {
	mu   sync.Mutex
	data []byte
}

// memFile is one open handle onto a memNode with its own position.
type memFile struct {
	node   *memNode
	pos    int64
	closed bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	if f.pos >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.node.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	end := f.pos + int64(len(p))
	if end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	copy(f.node.data[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, os.ErrClosed
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = int64(len(f.node.data)) + offset
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("negative seek position")
	}
	f.pos = pos
	return pos, nil
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}
