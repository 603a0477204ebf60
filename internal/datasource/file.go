package datasource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// File 本地文件
type File struct {
	Path   string
	source DataSource
}

// NewFile 创建文件来源
func NewFile(path string) *File {
	return &File{Path: path}
}

// NewCachedFile 创建带回溯引用的文件来源，用于记录"缓存到本地之前来自哪里"
func NewCachedFile(path string, source DataSource) *File {
	return &File{Path: path, source: source}
}

func (f *File) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, f.Path)
		}
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	return file, nil
}

func (f *File) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (f *File) Source() DataSource {
	return f.source
}

func (f *File) String() string {
	return f.Path
}
