// Package report 把分析结果输出为 JSON、JSONL、YAML、文本表格、XLSX 或 PDF。
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// Format 输出格式
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatText  Format = "text"
	FormatXLSX  Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// Formats 支持的全部格式
var Formats = []Format{FormatText, FormatJSON, FormatJSONL, FormatYAML, FormatXLSX, FormatPDF}

// ParseFormat 解析格式名，忽略大小写，yml 视为 yaml
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case "yml":
		return FormatYAML, nil
	case FormatJSON, FormatJSONL, FormatYAML, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// Write 按格式输出
func Write(w io.Writer, format Format, views []domain.ResultView) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case FormatJSONL:
		return writeJSONL(w, views)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case FormatXLSX:
		return writeXLSX(w, views)
	case FormatPDF:
		return writePDF(w, views)
	case FormatText, "":
		return writeText(w, views)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// writeJSONL 每个包一行
func writeJSONL(w io.Writer, views []domain.ResultView) error {
	enc := json.NewEncoder(w)
	for _, v := range views {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}
