// Package storage is the bulk-storage collaborator: positioned reads from
// named sample-set objects.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned for an unknown asset reference
var ErrNotFound = errors.New("asset not found")

// Reader fills p from ref starting at off. A read that cannot fill p
// completely is an error; callers never accept partial data.
type Reader interface {
	Read(ctx context.Context, ref string, off int64, p []byte) error
}

// Dir serves sample-set files from a directory.
type Dir struct {
	root  string
	mu    sync.Mutex
	files map[string]*os.File
}

// NewDir opens a directory store
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "opening asset directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("asset path %s is not a directory", root)
	}
	return &Dir{root: root, files: make(map[string]*os.File)}, nil
}

func (d *Dir) open(ref string) (*os.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.files[ref]; ok {
		return f, nil
	}
	if ref == "" || strings.ContainsRune(ref, 0) {
		return nil, errors.Errorf("invalid asset reference %q", ref)
	}
	// rooted Clean keeps ".." from escaping the directory
	f, err := os.Open(filepath.Join(d.root, filepath.Clean("/"+ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "asset %s", ref)
		}
		return nil, errors.Wrapf(err, "opening asset %s", ref)
	}
	d.files[ref] = f
	return f, nil
}

func (d *Dir) Read(ctx context.Context, ref string, off int64, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := d.open(ref)
	if err != nil {
		return err
	}
	n, err := f.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.Wrapf(err, "reading %s at %d (%d of %d bytes)", ref, off, n, len(p))
}

// Size returns the length of a sample-set file
func (d *Dir) Size(ref string) (int64, error) {
	f, err := d.open(ref)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", ref)
	}
	return info.Size(), nil
}

// Close closes every open file
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for ref, f := range d.files {
		if err := f.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing %s", ref)
		}
		delete(d.files, ref)
	}
	return first
}

// Mem is an in-memory store
type Mem struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMem creates an empty in-memory store
func NewMem() *Mem {
	return &Mem{objects: make(map[string][]byte)}
}

// Put stores a copy of data under ref
func (m *Mem) Put(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ref] = append([]byte(nil), data...)
}

func (m *Mem) Read(ctx context.Context, ref string, off int64, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	data, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "asset %s", ref)
	}
	if off < 0 || off+int64(len(p)) > int64(len(data)) {
		return errors.Wrapf(io.ErrUnexpectedEOF, "reading %s at %d (%d bytes, object is %d)", ref, off, len(p), len(data))
	}
	copy(p, data[off:])
	return nil
}
