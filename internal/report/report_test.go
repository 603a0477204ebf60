package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

func sampleViews() []domain.ResultView {
	return []domain.ResultView{
		{
			PackageName:          "com.example.app",
			SessionMode:          domain.SessionModeSingle,
			ContainerType:        domain.DataTypeXAPK,
			SignatureMatchStatus: domain.SignatureMismatch,
			InstalledAppInfo:     &domain.InstalledAppInfo{PackageName: "com.example.app", VersionCode: 10, VersionName: "1.0"},
			Entities: []domain.EntityView{
				{Kind: domain.KindBase, PackageName: "com.example.app", Name: "base.apk", Path: "/cache/base.apk", Origin: "/inbox/app.xapk", Size: 3 << 20, VersionCode: 12, VersionName: "1.2", Selected: true},
				{Kind: domain.KindSplit, PackageName: "com.example.app", Name: "config.fr.apk", Size: 2048, SplitName: "config.fr", Selected: false},
			},
		},
		{
			PackageName:          "org.other",
			SessionMode:          domain.SessionModeSingle,
			ContainerType:        domain.DataTypeAPK,
			SignatureMatchStatus: domain.SignatureNotInstalled,
			Entities: []domain.EntityView{
				{Kind: domain.KindBase, PackageName: "org.other", Name: "other.apk", Size: 512, Selected: true},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":      FormatText,
		"TEXT":  FormatText,
		"json":  FormatJSON,
		"jsonl": FormatJSONL,
		"yml":   FormatYAML,
		"yaml":  FormatYAML,
		"xlsx":  FormatXLSX,
		"PDF":   FormatPDF,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("csv")
	assert.Error(t, err)
}

func TestWrite_JSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSONL, sampleViews()))

	var packages []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var v domain.ResultView
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		packages = append(packages, v.PackageName)
	}
	assert.Equal(t, []string{"com.example.app", "org.other"}, packages)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleViews()))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "com.example.app", decoded[0]["package_name"])
	assert.Equal(t, "XAPK", decoded[0]["container_type"])
	assert.Contains(t, buf.String(), "split_name: config.fr")
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleViews()))
	out := buf.String()

	assert.Contains(t, out, "com.example.app")
	assert.Contains(t, out, "installed: 1.0 (10)")
	assert.Contains(t, out, "MISMATCH")
	assert.Contains(t, out, "3.1 MB")
	assert.Contains(t, out, "/inbox/app.xapk")
	assert.Contains(t, out, "1.2 (12)")
	assert.Contains(t, out, "config.fr.apk")
	assert.Equal(t, 1, strings.Count(out, "installed:"))

	buf.Reset()
	require.NoError(t, Write(&buf, FormatText, nil))
	assert.Equal(t, "no installable content found\n", buf.String())
}

func TestWrite_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleViews()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Package", rows[0][0])
	assert.Equal(t, "com.example.app", rows[1][0])
	assert.Equal(t, "base.apk", rows[1][6])
	assert.Equal(t, "org.other", rows[3][0])
}

func TestWrite_PDF(t *testing.T) {
	views := sampleViews()
	views[1].Entities[0].Name = "应用.apk"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPDF, views))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.NoError(t, Write(&buf, FormatPDF, nil))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestPDFText(t *testing.T) {
	assert.Equal(t, "??.apk", pdfText("应用.apk"))
	assert.Equal(t, "café", pdfText("café"))
}

func TestWrite_Unsupported(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Format("csv"), nil))
}
