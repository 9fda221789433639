package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileSource is a photo on the local filesystem.
type FileSource struct {
	path string
	info os.FileInfo
}

// OpenFileSource stats path and returns a Source for it.
func OpenFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileSource{path: path, info: info}, nil
}

// FileSources opens every path, failing on the first bad one.
func FileSources(paths []string) ([]Source, error) {
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := OpenFileSource(p)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (f *FileSource) Name() string                 { return filepath.Base(f.path) }
func (f *FileSource) Size() int64                  { return f.info.Size() }
func (f *FileSource) ModTime() time.Time           { return f.info.ModTime() }
func (f *FileSource) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// BytesSource is an in-memory photo.
type BytesSource struct {
	FileName string
	Data     []byte
	Modified time.Time
}

func (b *BytesSource) Name() string       { return b.FileName }
func (b *BytesSource) Size() int64        { return int64(len(b.Data)) }
func (b *BytesSource) ModTime() time.Time { return b.Modified }
func (b *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}
