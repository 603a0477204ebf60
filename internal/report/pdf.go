package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/phpdave11/gofpdf"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

const pdfFont = "Helvetica"

// pdfColumns 实体表格的列宽（mm），合计为 A4 横向可用宽度
var pdfColumns = []struct {
	title string
	width float64
}{
	{"", 8}, {"Kind", 24}, {"Name", 70}, {"Version", 45}, {"Arch", 28}, {"Size", 24}, {"Source", 70},
}

// writePDF 每个包一节，节内是实体表格。内置字体只支持 cp1252，其它字符替换为 '?'
func writePDF(w io.Writer, views []domain.ResultView) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetTitle("APK intake report", false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(pdfText(s)) }

	pdf.SetFont(pdfFont, "B", 14)
	pdf.CellFormat(0, 8, "APK intake report", "", 1, "L", false, 0, "")
	pdf.SetFont(pdfFont, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 5, fmt.Sprintf("%d package(s)", len(views)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(views) == 0 {
		pdf.MultiCell(0, 5, "no installable content found", "", "L", false)
	}

	for _, v := range views {
		pdf.SetFont(pdfFont, "B", 11)
		pdf.SetTextColor(20, 20, 20)
		pdf.CellFormat(0, 6, text(fmt.Sprintf("%s  (%s, %s)", v.PackageName, v.ContainerType, v.SessionMode)), "", 1, "L", false, 0, "")

		pdf.SetFont(pdfFont, "", 9)
		pdf.SetTextColor(60, 60, 60)
		if v.InstalledAppInfo != nil {
			pdf.CellFormat(0, 5, text(fmt.Sprintf("installed: %s (%d)  signature: %s",
				v.InstalledAppInfo.VersionName, v.InstalledAppInfo.VersionCode, v.SignatureMatchStatus)), "", 1, "L", false, 0, "")
		}

		pdf.SetFont(pdfFont, "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, 5, col.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont(pdfFont, "", 8)
		pdf.SetTextColor(30, 30, 30)
		for _, e := range v.Entities {
			mark := ""
			if e.Selected {
				mark = "x"
			}
			version := ""
			if e.VersionCode != 0 || e.VersionName != "" {
				version = fmt.Sprintf("%s (%d)", e.VersionName, e.VersionCode)
			}
			source := e.Path
			if e.Origin != "" {
				source = e.Origin
			}
			cells := []string{mark, string(e.Kind), e.Name, version, e.Architecture, humanize.Bytes(uint64(max(e.Size, 0))), source}
			for i, col := range pdfColumns {
				pdf.CellFormat(col.width, 5, tr(truncate(pdf, pdfText(cells[i]), col.width-2)), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(3)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// pdfText 把非 Latin-1 字符替换为 '?'
func pdfText(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xff {
			return '?'
		}
		return r
	}, s)
}

// truncate 超出列宽时从左侧截断，保留文件名所在的尾部
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth("..."+string(runes)) > width {
		runes = runes[1:]
	}
	return "..." + string(runes)
}
