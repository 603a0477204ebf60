package datasource

import (
	"archive/zip"
	"fmt"
	"io"
)

// ZipEntryInFile 磁盘 zip 文件中的一个条目
type ZipEntryInFile struct {
	Name   string
	Parent *File
}

// NewZipEntryInFile 创建 zip 条目来源
func NewZipEntryInFile(name string, parent *File) *ZipEntryInFile {
	return &ZipEntryInFile{Name: name, Parent: parent}
}

func (z *ZipEntryInFile) Open() (io.ReadCloser, error) {
	zr, err := zip.OpenReader(z.Parent.Path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", z.Parent.Path, err)
	}

	entry := findEntry(&zr.Reader, z.Name)
	if entry == nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %s!/%s", ErrNotFound, z.Parent.Path, z.Name)
	}

	rc, err := entry.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("open entry %s: %w", z.Name, err)
	}
	return &multiCloser{Reader: rc, closers: []io.Closer{rc, zr}}, nil
}

// Header 读取中央目录中的条目头（CRC-32、大小），不解压
func (z *ZipEntryInFile) Header() (zip.FileHeader, error) {
	zr, err := zip.OpenReader(z.Parent.Path)
	if err != nil {
		return zip.FileHeader{}, fmt.Errorf("open zip %s: %w", z.Parent.Path, err)
	}
	defer zr.Close()

	entry := findEntry(&zr.Reader, z.Name)
	if entry == nil {
		return zip.FileHeader{}, fmt.Errorf("%w: %s!/%s", ErrNotFound, z.Parent.Path, z.Name)
	}
	return entry.FileHeader, nil
}

func (z *ZipEntryInFile) Size() int64 {
	h, err := z.Header()
	if err != nil {
		return 0
	}
	if h.UncompressedSize64 > 0 {
		return int64(h.UncompressedSize64)
	}
	return int64(h.CompressedSize64)
}

// Source 父文件是缓存副本时，回溯到原始流中的同名条目
func (z *ZipEntryInFile) Source() DataSource {
	if z.Parent.Source() == nil {
		return nil
	}
	return NewZipEntryInStream(z.Name, z.Parent.Source())
}

func (z *ZipEntryInFile) String() string {
	return z.Parent.Path + "!/" + z.Name
}

func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
