package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

var (
	selectedMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	packageTitle = color.New(color.FgCyan, color.Bold).SprintFunc()
	mismatchMark = color.New(color.FgRed).SprintFunc()
)

// writeText 每个包一个表格
func writeText(w io.Writer, views []domain.ResultView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "no installable content found")
		return err
	}

	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  (%s, %s)\n", packageTitle(v.PackageName), v.ContainerType, v.SessionMode)
		if v.InstalledAppInfo != nil {
			status := string(v.SignatureMatchStatus)
			if v.SignatureMatchStatus == domain.SignatureMismatch {
				status = mismatchMark(status)
			}
			fmt.Fprintf(w, "installed: %s (%d)  signature: %s\n",
				v.InstalledAppInfo.VersionName, v.InstalledAppInfo.VersionCode, status)
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\tKIND\tNAME\tVERSION\tARCH\tSIZE\tSOURCE")
		for _, e := range v.Entities {
			mark := " "
			if e.Selected {
				mark = selectedMark("*")
			}
			version := ""
			if e.VersionCode != 0 || e.VersionName != "" {
				version = fmt.Sprintf("%s (%d)", e.VersionName, e.VersionCode)
			}
			source := e.Path
			if e.Origin != "" {
				source = e.Origin
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				mark, e.Kind, e.Name, version, e.Architecture, humanize.Bytes(uint64(max(e.Size, 0))), source)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
