// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

const sep = "/"

// NewMem returns a new memory-backed FS implementation. Paths are always "/"
// separated. Parent directories are created implicitly.
func NewMem() *MemFS {
	return &MemFS{
		nodes:  map[string]*memNode{"/": {isDir: true, modTime: time.Now()}},
		locked: map[string]struct{}{},
	}
}

// NewMemFile returns a memory-backed File implementation. The memory-backed
// file takes ownership of data.
func NewMemFile(data []byte) File {
	n := &memNode{modTime: time.Now()}
	n.mu.data = data
	return &memFile{name: "mem", n: n, read: true}
}

// MemFS implements FS.
type MemFS struct {
	mu     sync.Mutex
	nodes  map[string]*memNode
	locked map[string]struct{}
}

var _ FS = (*MemFS)(nil)

type memNode struct {
	isDir   bool
	modTime time.Time
	mu      struct {
		sync.Mutex
		data []byte
	}
}

func (n *memNode) size() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return int64(len(n.mu.data))
}

func clean(name string) string {
	return path.Clean(sep + name)
}

func notExist(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: oserror.ErrNotExist}
}

// String dumps the contents of the MemFS.
func (y *MemFS) String() string {
	y.mu.Lock()
	defer y.mu.Unlock()
	names := make([]string, 0, len(y.nodes))
	for name := range y.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	var buf bytes.Buffer
	for _, name := range names {
		n := y.nodes[name]
		if n.isDir {
			fmt.Fprintf(&buf, "%s/\n", name)
		} else {
			fmt.Fprintf(&buf, "%s %d\n", name, n.size())
		}
	}
	return buf.String()
}

// mkdirAllLocked creates dir and its parents. y.mu must be held.
func (y *MemFS) mkdirAllLocked(dir string) error {
	for d := dir; ; d = path.Dir(d) {
		if n, ok := y.nodes[d]; ok {
			if !n.isDir {
				return errors.Newf("sstkv/vfs: %q is not a directory", d)
			}
		} else {
			y.nodes[d] = &memNode{isDir: true, modTime: time.Now()}
		}
		if d == sep {
			return nil
		}
	}
}

// Create implements FS.Create.
func (y *MemFS) Create(name string) (File, error) {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if err := y.mkdirAllLocked(path.Dir(name)); err != nil {
		return nil, err
	}
	if n, ok := y.nodes[name]; ok && n.isDir {
		return nil, errors.Newf("sstkv/vfs: %q is a directory", name)
	}
	n := &memNode{modTime: time.Now()}
	y.nodes[name] = n
	return &memFile{name: name, n: n, read: true, write: true}, nil
}

// Open implements FS.Open.
func (y *MemFS) Open(name string) (File, error) {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[name]
	if !ok {
		return nil, notExist("open", name)
	}
	return &memFile{name: name, n: n, read: !n.isDir}, nil
}

// Remove implements FS.Remove.
func (y *MemFS) Remove(name string) error {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[name]
	if !ok {
		return notExist("remove", name)
	}
	if n.isDir {
		for other := range y.nodes {
			if other != name && path.Dir(other) == name {
				return errors.Newf("sstkv/vfs: directory %q is not empty", name)
			}
		}
	}
	delete(y.nodes, name)
	return nil
}

// Rename implements FS.Rename.
func (y *MemFS) Rename(oldname, newname string) error {
	oldname, newname = clean(oldname), clean(newname)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[oldname]
	if !ok {
		return notExist("rename", oldname)
	}
	if n.isDir {
		return errors.Newf("sstkv/vfs: cannot rename directory %q", oldname)
	}
	if err := y.mkdirAllLocked(path.Dir(newname)); err != nil {
		return err
	}
	delete(y.nodes, oldname)
	y.nodes[newname] = n
	return nil
}

// MkdirAll implements FS.MkdirAll.
func (y *MemFS) MkdirAll(dir string, perm os.FileMode) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.mkdirAllLocked(clean(dir))
}

// Lock implements FS.Lock.
func (y *MemFS) Lock(name string) (io.Closer, error) {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	if _, ok := y.locked[name]; ok {
		return nil, errors.Wrapf(errLockHeld, "%s", name)
	}
	if err := y.mkdirAllLocked(path.Dir(name)); err != nil {
		return nil, err
	}
	if _, ok := y.nodes[name]; !ok {
		y.nodes[name] = &memNode{modTime: time.Now()}
	}
	y.locked[name] = struct{}{}
	return &memFileLock{y: y, name: name}, nil
}

// List implements FS.List.
func (y *MemFS) List(dir string) ([]string, error) {
	dir = clean(dir)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[dir]
	if !ok {
		return nil, notExist("open", dir)
	}
	if !n.isDir {
		return nil, errors.Newf("sstkv/vfs: %q is not a directory", dir)
	}
	var names []string
	for name := range y.nodes {
		if name != dir && path.Dir(name) == dir {
			names = append(names, path.Base(name))
		}
	}
	slices.Sort(names)
	return names, nil
}

// Stat implements FS.Stat.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	name = clean(name)
	y.mu.Lock()
	defer y.mu.Unlock()
	n, ok := y.nodes[name]
	if !ok {
		return nil, notExist("stat", name)
	}
	return &memFileInfo{name: path.Base(name), n: n}, nil
}

// PathBase implements FS.PathBase.
func (*MemFS) PathBase(p string) string {
	// Note that MemFS uses forward slashes for its separator, hence the use of
	// path.Base, not filepath.Base.
	return path.Base(p)
}

// PathJoin implements FS.PathJoin.
func (*MemFS) PathJoin(elem ...string) string {
	return path.Join(elem...)
}

// memFile is a reader or writer of a node's data.
type memFile struct {
	name        string
	n           *memNode
	rpos        int
	read, write bool
	closed      bool
}

var _ File = (*memFile)(nil)

func (f *memFile) Close() error {
	if f.closed {
		return errors.Newf("sstkv/vfs: %q already closed", f.name)
	}
	f.closed = true
	return nil
}

func (f *memFile) Read(p []byte) (int, error) {
	if !f.read {
		return 0, errors.New("sstkv/vfs: file was not opened for reading")
	}
	if f.n.isDir {
		return 0, errors.New("sstkv/vfs: cannot read a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.rpos >= len(f.n.mu.data) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[f.rpos:])
	f.rpos += n
	return n, nil
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if !f.read {
		return 0, errors.New("sstkv/vfs: file was not opened for reading")
	}
	if f.n.isDir {
		return 0, errors.New("sstkv/vfs: cannot read a directory")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if off < 0 {
		return 0, errors.Newf("sstkv/vfs: negative offset %d", off)
	}
	if off >= int64(len(f.n.mu.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if !f.write {
		return 0, errors.New("sstkv/vfs: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.mu.data = append(f.n.mu.data, p...)
	return len(p), nil
}

func (f *memFile) Stat() (os.FileInfo, error) {
	return &memFileInfo{name: path.Base(f.name), n: f.n}, nil
}

func (f *memFile) Sync() error {
	return nil
}

type memFileInfo struct {
	name string
	n    *memNode
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return f.n.size() }
func (f *memFileInfo) ModTime() time.Time { return f.n.modTime }
func (f *memFileInfo) IsDir() bool        { return f.n.isDir }
func (f *memFileInfo) Sys() interface{}   { return nil }

func (f *memFileInfo) Mode() os.FileMode {
	if f.n.isDir {
		return os.ModeDir | 0755
	}
	return 0755
}

type memFileLock struct {
	y    *MemFS
	name string
}

func (l *memFileLock) Close() error {
	if l.y == nil {
		return nil
	}
	l.y.mu.Lock()
	delete(l.y.locked, l.name)
	l.y.mu.Unlock()
	l.y = nil
	return nil
}
