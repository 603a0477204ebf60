// Package apktest 在测试中生成带二进制清单的最小 APK。
package apktest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"
)

const androidNS = "http://schemas.android.com/apk/res/android"

// 二进制 XML 块类型
const (
	chunkStringPool     = 0x0001
	chunkXML            = 0x0003
	chunkStartNamespace = 0x0100
	chunkEndNamespace   = 0x0101
	chunkStartElement   = 0x0102
	chunkEndElement     = 0x0103

	typeString = 0x03
	typeIntDec = 0x10

	noRef = 0xFFFFFFFF
)

// Manifest 清单中可设置的字段，零值字段不写入
type Manifest struct {
	Package          string
	Split            string
	SharedUserID     string
	VersionCode      int32
	VersionCodeMajor int32
	VersionName      string
	MinSdk           int32
	TargetSdk        int32
	Label            string
	Permissions      []string
}

type attr struct {
	ns    bool
	name  string
	str   string
	num   int32
	isNum bool
}

func strAttr(ns bool, name, value string) attr { return attr{ns: ns, name: name, str: value} }
func numAttr(name string, value int32) attr    { return attr{ns: true, name: name, num: value, isNum: true} }

type encoder struct {
	strs  []string
	index map[string]uint32
	body  bytes.Buffer
}

func (e *encoder) ref(s string) uint32 {
	if i, ok := e.index[s]; ok {
		return i
	}
	i := uint32(len(e.strs))
	e.strs = append(e.strs, s)
	e.index[s] = i
	return i
}

func (e *encoder) put(v ...any) {
	for _, x := range v {
		binary.Write(&e.body, binary.LittleEndian, x)
	}
}

// node 写入 ResXMLTree_node 头
func (e *encoder) node(chunkType uint16, size uint32) {
	e.put(chunkType, uint16(16), size, uint32(1), uint32(noRef))
}

func (e *encoder) namespace(chunkType uint16) {
	e.node(chunkType, 24)
	e.put(e.ref("android"), e.ref(androidNS))
}

func (e *encoder) start(name string, attrs ...attr) {
	e.node(chunkStartElement, uint32(16+20+20*len(attrs)))
	e.put(uint32(noRef), e.ref(name), uint16(20), uint16(20), uint16(len(attrs)), uint16(0), uint16(0), uint16(0))
	for _, a := range attrs {
		ns := uint32(noRef)
		if a.ns {
			ns = e.ref(androidNS)
		}
		if a.isNum {
			e.put(ns, e.ref(a.name), uint32(noRef), uint16(8), uint8(0), uint8(typeIntDec), uint32(a.num))
			continue
		}
		v := e.ref(a.str)
		e.put(ns, e.ref(a.name), v, uint16(8), uint8(0), uint8(typeString), v)
	}
}

func (e *encoder) end(name string) {
	e.node(chunkEndElement, 24)
	e.put(uint32(noRef), e.ref(name))
}

// stringPool UTF-16 字符串池
func (e *encoder) stringPool() []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(e.strs))
	for i, s := range e.strs {
		offsets[i] = uint32(data.Len())
		units := utf16.Encode([]rune(s))
		binary.Write(&data, binary.LittleEndian, uint16(len(units)))
		binary.Write(&data, binary.LittleEndian, units)
		binary.Write(&data, binary.LittleEndian, uint16(0))
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	headerSize := uint32(28)
	stringStart := headerSize + uint32(4*len(e.strs))
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint16(chunkStringPool))
	binary.Write(&out, binary.LittleEndian, uint16(headerSize))
	binary.Write(&out, binary.LittleEndian, stringStart+uint32(data.Len()))
	binary.Write(&out, binary.LittleEndian, uint32(len(e.strs)))
	binary.Write(&out, binary.LittleEndian, uint32(0))
	binary.Write(&out, binary.LittleEndian, uint32(0))
	binary.Write(&out, binary.LittleEndian, stringStart)
	binary.Write(&out, binary.LittleEndian, uint32(0))
	binary.Write(&out, binary.LittleEndian, offsets)
	out.Write(data.Bytes())
	return out.Bytes()
}

// EncodeManifest 生成二进制 AndroidManifest.xml
func EncodeManifest(m Manifest) []byte {
	e := &encoder{index: make(map[string]uint32)}

	attrs := []attr{strAttr(false, "package", m.Package)}
	if m.Split != "" {
		attrs = append(attrs, strAttr(false, "split", m.Split))
	}
	if m.SharedUserID != "" {
		attrs = append(attrs, strAttr(true, "sharedUserId", m.SharedUserID))
	}
	attrs = append(attrs, numAttr("versionCode", m.VersionCode))
	if m.VersionCodeMajor != 0 {
		attrs = append(attrs, numAttr("versionCodeMajor", m.VersionCodeMajor))
	}
	if m.VersionName != "" {
		attrs = append(attrs, strAttr(true, "versionName", m.VersionName))
	}

	e.namespace(chunkStartNamespace)
	e.start("manifest", attrs...)

	var sdk []attr
	if m.MinSdk != 0 {
		sdk = append(sdk, numAttr("minSdkVersion", m.MinSdk))
	}
	if m.TargetSdk != 0 {
		sdk = append(sdk, numAttr("targetSdkVersion", m.TargetSdk))
	}
	e.start("uses-sdk", sdk...)
	e.end("uses-sdk")

	for _, p := range m.Permissions {
		e.start("uses-permission", strAttr(true, "name", p))
		e.end("uses-permission")
	}

	var app []attr
	if m.Label != "" {
		app = append(app, strAttr(true, "label", m.Label))
	}
	e.start("application", app...)
	e.end("application")

	e.end("manifest")
	e.namespace(chunkEndNamespace)

	pool := e.stringPool()
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint16(chunkXML))
	binary.Write(&out, binary.LittleEndian, uint16(8))
	binary.Write(&out, binary.LittleEndian, uint32(8+len(pool)+e.body.Len()))
	out.Write(pool)
	out.Write(e.body.Bytes())
	return out.Bytes()
}

// APK 生成 APK 字节：清单加上每个 ABI 一个空的 so
func APK(t testing.TB, m Manifest, abis ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("AndroidManifest.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(EncodeManifest(m)); err != nil {
		t.Fatal(err)
	}
	for _, abi := range abis {
		if _, err := zw.Create("lib/" + abi + "/libnative.so"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := zw.Create("classes.dex"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// WriteAPK 把 APK 写到 dir/name 并返回路径
func WriteAPK(t testing.TB, dir, name string, m Manifest, abis ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, APK(t, m, abis...), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Entry 容器中的一个条目
type Entry struct {
	Name string
	Data []byte
}

// WriteZip 把条目按顺序写成 zip 文件并返回路径
func WriteZip(t testing.TB, dir, name string, entries ...Entry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}
