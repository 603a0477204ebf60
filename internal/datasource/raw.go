package datasource

import (
	"fmt"
	"io"
	"sync"
)

// RawStream 长度已知或未知的一次性流，例如网络下载
type RawStream struct {
	Name   string
	reader io.Reader
	length int64

	mu       sync.Mutex
	consumed bool
}

// NewRawStream 创建原始流来源，length 未知时传 -1
func NewRawStream(name string, r io.Reader, length int64) *RawStream {
	return &RawStream{Name: name, reader: r, length: length}
}

// Open 只能成功一次
func (s *RawStream) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed {
		return nil, fmt.Errorf("%w: %s", ErrConsumed, s.Name)
	}
	s.consumed = true

	if rc, ok := s.reader.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.reader), nil
}

func (s *RawStream) Size() int64 {
	return s.length
}

func (s *RawStream) Source() DataSource {
	return nil
}

func (s *RawStream) String() string {
	if s.Name == "" {
		return "stream"
	}
	return "stream:" + s.Name
}
