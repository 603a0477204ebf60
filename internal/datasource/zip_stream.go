package datasource

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

const (
	localHeaderSignature   = 0x04034b50
	centralHeaderSignature = 0x02014b50
	endOfCentralSignature  = 0x06054b50
	dataDescriptorSig      = 0x08074b50

	methodStore   = 0
	methodDeflate = 8

	flagDataDescriptor = 0x8
	zip64ExtraID       = 0x0001
)

var errEndOfEntries = errors.New("end of local entries")

// ZipEntryInStream 通过顺序扫描另一个来源的字节流定位到的 zip 条目
type ZipEntryInStream struct {
	Name   string
	Parent DataSource
}

// NewZipEntryInStream 创建流式 zip 条目来源
func NewZipEntryInStream(name string, parent DataSource) *ZipEntryInStream {
	return &ZipEntryInStream{Name: name, Parent: parent}
}

func (z *ZipEntryInStream) Open() (io.ReadCloser, error) {
	src, err := z.Parent.Open()
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(src)
	for {
		h, err := readLocalHeader(br)
		if err != nil {
			src.Close()
			if errors.Is(err, errEndOfEntries) {
				return nil, fmt.Errorf("%w: %s!/%s", ErrNotFound, z.Parent, z.Name)
			}
			return nil, fmt.Errorf("scan %s: %w", z.Parent, err)
		}

		if h.name == z.Name {
			body, err := h.body(br)
			if err != nil {
				src.Close()
				return nil, err
			}
			return &multiCloser{Reader: body, closers: []io.Closer{body, src}}, nil
		}

		if err := h.skip(br); err != nil {
			src.Close()
			return nil, fmt.Errorf("skip entry %s: %w", h.name, err)
		}
	}
}

// Size 流式扫描无法在不消费条目的情况下得知长度
func (z *ZipEntryInStream) Size() int64 {
	return -1
}

func (z *ZipEntryInStream) Source() DataSource {
	return nil
}

func (z *ZipEntryInStream) String() string {
	return z.Parent.String() + "!/" + z.Name
}

type localHeader struct {
	name           string
	flags          uint16
	method         uint16
	compressedSize uint64
	zip64          bool
}

func readLocalHeader(br *bufio.Reader) (*localHeader, error) {
	var buf [30]byte
	if _, err := io.ReadFull(br, buf[:4]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEndOfEntries
		}
		return nil, err
	}

	switch binary.LittleEndian.Uint32(buf[:4]) {
	case localHeaderSignature:
	case centralHeaderSignature, endOfCentralSignature:
		return nil, errEndOfEntries
	default:
		return nil, fmt.Errorf("unexpected signature %#x", binary.LittleEndian.Uint32(buf[:4]))
	}

	if _, err := io.ReadFull(br, buf[4:]); err != nil {
		return nil, err
	}

	h := &localHeader{
		flags:          binary.LittleEndian.Uint16(buf[6:8]),
		method:         binary.LittleEndian.Uint16(buf[8:10]),
		compressedSize: uint64(binary.LittleEndian.Uint32(buf[18:22])),
	}
	nameLen := int(binary.LittleEndian.Uint16(buf[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(buf[28:30]))

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, err
	}
	h.name = string(name)

	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(br, extra); err != nil {
		return nil, err
	}
	h.applyZip64(extra)

	return h, nil
}

// applyZip64 从扩展字段中读取 64 位大小
func (h *localHeader) applyZip64(extra []byte) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if 4+size > len(extra) {
			return
		}
		if id == zip64ExtraID {
			h.zip64 = true
			// 依次为未压缩大小、压缩大小
			if size >= 16 && h.compressedSize == 0xFFFFFFFF {
				h.compressedSize = binary.LittleEndian.Uint64(extra[12:20])
			}
		}
		extra = extra[4+size:]
	}
}

func (h *localHeader) hasDescriptor() bool {
	return h.flags&flagDataDescriptor != 0
}

func (h *localHeader) body(br *bufio.Reader) (io.ReadCloser, error) {
	switch h.method {
	case methodStore:
		if h.hasDescriptor() {
			return nil, fmt.Errorf("stored entry %s with data descriptor is not supported in stream mode", h.name)
		}
		return io.NopCloser(io.LimitReader(br, int64(h.compressedSize))), nil
	case methodDeflate:
		if h.hasDescriptor() {
			return flate.NewReader(br), nil
		}
		return flate.NewReader(io.LimitReader(br, int64(h.compressedSize))), nil
	default:
		return nil, fmt.Errorf("unsupported compression method %d for %s", h.method, h.name)
	}
}

func (h *localHeader) skip(br *bufio.Reader) error {
	if !h.hasDescriptor() {
		_, err := io.CopyN(io.Discard, br, int64(h.compressedSize))
		return err
	}

	if h.method != methodDeflate {
		return fmt.Errorf("cannot skip entry %s: unknown length", h.name)
	}

	// bufio.Reader 实现了 io.ByteReader，解压器不会越过压缩流的末尾
	fr := flate.NewReader(br)
	if _, err := io.Copy(io.Discard, fr); err != nil {
		fr.Close()
		return err
	}
	fr.Close()

	return skipDataDescriptor(br, h.zip64)
}

func skipDataDescriptor(br *bufio.Reader, zip64 bool) error {
	sig, err := br.Peek(4)
	if err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(sig) == dataDescriptorSig {
		if _, err := br.Discard(4); err != nil {
			return err
		}
	}

	// crc32 + 压缩大小 + 未压缩大小
	n := 12
	if zip64 {
		n = 20
	}
	_, err = br.Discard(n)
	return err
}
