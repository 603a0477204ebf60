package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/detector"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

var detectCmd = &cobra.Command{
	Use:           "detect <FILE>...",
	Aliases:       []string{"d"},
	Short:         "Print the container format of each file without extracting it",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		d := detector.NewDetector(logger)
		extra := domain.AnalyseExtra{ModuleFlashEnabled: cfg.Analysis.ModuleFlashEnabled}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tSIZE\tFILE")
		for _, arg := range args {
			file := datasource.NewFile(arg)
			dataType := d.Detect(file, extra)
			name := string(dataType)
			if !dataType.IsKnown() {
				name = color.YellowString(name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", name, humanize.Bytes(uint64(max(file.Size(), 0))), arg)
		}
		return tw.Flush()
	},
}
