package analyser

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/splitmeta"
)

const maxDescriptorSize = 4 << 20

var utf8BOM = []byte("\xef\xbb\xbf")

// flexString 兼容数字和字符串两种写法的 JSON 字段
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) Int64() int64 {
	v, _ := strconv.ParseInt(string(f), 10, 64)
	return v
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxDescriptorSize))
		if err != nil {
			return nil, err
		}
		return bytes.TrimPrefix(data, utf8BOM), nil
	}
	return nil, fmt.Errorf("%w: %s", datasource.ErrNotFound, name)
}

func readJSONEntry(zr *zip.Reader, name string, v any) error {
	data, err := readZipEntry(zr, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func hasEntry(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// stem 去掉目录和扩展名
func stem(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(path.Ext(name), ext)
}

// newSplit 根据分包名构造分包实体
func newSplit(info domain.EntityInfo, splitName string) *domain.SplitEntity {
	meta := splitmeta.Parse(splitName)
	if meta.Filter == domain.FilterABI {
		info.Architecture = domain.Architecture(meta.ConfigValue)
	}
	return &domain.SplitEntity{
		EntityInfo:  info,
		SplitName:   splitName,
		Type:        meta.Type,
		Filter:      meta.Filter,
		ConfigValue: meta.ConfigValue,
	}
}

// removeCached 删除解析用的临时副本
func removeCached(e domain.AppEntity) {
	if f, ok := e.Data().(*datasource.File); ok && f.Source() != nil {
		os.Remove(f.Path)
	}
}
