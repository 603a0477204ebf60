package report

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

const xlsxSheet = "Entities"

var xlsxHeader = []interface{}{
	"Package", "Container", "Session", "Signature", "Selected", "Kind", "Name",
	"Version Code", "Version Name", "Architecture", "Size", "Target SDK", "Min SDK", "Path", "Origin",
}

// writeXLSX 每个实体一行
func writeXLSX(w io.Writer, views []domain.ResultView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &xlsxHeader); err != nil {
		return err
	}

	row := 2
	for _, v := range views {
		for _, e := range v.Entities {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			values := []interface{}{
				v.PackageName, string(v.ContainerType), string(v.SessionMode), string(v.SignatureMatchStatus),
				e.Selected, string(e.Kind), e.Name,
				e.VersionCode, e.VersionName, e.Architecture, e.Size, e.TargetSdk, e.MinSdk, e.Path, e.Origin,
			}
			if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
				return err
			}
			row++
		}
	}

	if err := f.SetColWidth(xlsxSheet, "A", "O", 18); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}
