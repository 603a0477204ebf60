// Package detector 识别安装包容器格式。
package detector

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

const maxDescriptorSize = 1 << 20

var (
	zipMagic      = []byte{'P', 'K', 0x03, 0x04}
	emptyZipMagic = []byte{'P', 'K', 0x05, 0x06}
	axmlMagic     = []byte{0x03, 0x00, 0x08, 0x00}
)

// Detector 容器格式检测器
type Detector struct {
	logger *logrus.Logger
}

// NewDetector 创建检测器
func NewDetector(logger *logrus.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect 判断数据来源的容器格式，无法识别时返回 DataTypeNone。
// 只读取文件头、中央目录和两个 JSON 描述文件，不解压 APK 内容。
func (d *Detector) Detect(ds datasource.DataSource, extra domain.AnalyseExtra) domain.DataType {
	if extra.DataType.IsKnown() {
		return extra.DataType
	}

	file, ok := ds.(*datasource.File)
	if !ok {
		d.logger.WithField("source", ds.String()).Debug("Only local files can be inspected")
		return domain.DataTypeNone
	}

	log := d.logger.WithField("path", file.Path)
	lowerPath := strings.ToLower(file.Path)

	magic, err := readMagic(file)
	if err != nil {
		log.WithError(err).Warn("Failed to read file header")
		return domain.DataTypeNone
	}

	if !bytes.Equal(magic, zipMagic) && !bytes.Equal(magic, emptyZipMagic) {
		if strings.HasSuffix(lowerPath, ".apk") || bytes.Equal(magic, axmlMagic) {
			return domain.DataTypeAPK
		}
		log.Debug("Not a zip container")
		return domain.DataTypeNone
	}

	if strings.HasSuffix(lowerPath, ".dm") {
		return domain.DataTypeAPK
	}

	zr, err := zip.OpenReader(file.Path)
	if err != nil {
		if strings.HasSuffix(lowerPath, ".apk") {
			log.WithError(err).Warn("Unreadable zip, treating as apk by extension")
			return domain.DataTypeAPK
		}
		log.WithError(err).Warn("Failed to open zip container")
		return domain.DataTypeNone
	}
	defer zr.Close()

	stats := collectArchiveStats(&zr.Reader)

	rules := standardRules
	if extra.ModuleFlashEnabled {
		rules = append(append([]formatRule{}, moduleRules...), standardRules...)
	}

	for _, rule := range rules {
		if rule.Match(stats) {
			log.WithFields(logrus.Fields{
				"rule": rule.Name,
				"type": rule.Type,
			}).Debug("Container format detected")
			return rule.Type
		}
	}

	log.WithField("entries", len(stats.Names)).Info("Unrecognized container")
	return domain.DataTypeNone
}

func readMagic(file *datasource.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	magic := make([]byte, 4)
	n, err := io.ReadFull(rc, magic)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return magic[:n], nil
}

func collectArchiveStats(zr *zip.Reader) *archiveStats {
	stats := &archiveStats{Names: make(map[string]bool, len(zr.File))}
	for _, f := range zr.File {
		stats.add(f.Name)
		switch f.Name {
		case "manifest.json":
			stats.XAPKManifest = jsonKeys(f)
		case "info.json":
			stats.APKMInfo = jsonKeys(f)
		}
	}
	return stats
}

// jsonKeys 顶层非空字段集合
func jsonKeys(f *zip.File) map[string]bool {
	rc, err := f.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDescriptorSize))
	if err != nil {
		return nil
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}

	keys := make(map[string]bool, len(obj))
	for k, v := range obj {
		if len(v) > 0 && string(v) != "null" {
			keys[k] = true
		}
	}
	return keys
}
