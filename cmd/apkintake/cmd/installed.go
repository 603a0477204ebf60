package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/installed"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
)

func init() {
	installedImportCmd.Flags().String("file", "", "snapshot file (YAML or JSON list)")
	installedImportCmd.Flags().Bool("from-adb", false, "read every package from the adb target")
	installedImportCmd.Flags().Int("concurrency", 4, "parallel dumpsys calls when reading from adb")
	installedImportCmd.MarkFlagFilename("file", "yaml", "yml", "json")
	installedImportCmd.MarkFlagsMutuallyExclusive("file", "from-adb")
	installedImportCmd.MarkFlagsOneRequired("file", "from-adb")

	installedCmd.AddCommand(installedImportCmd)
	installedCmd.AddCommand(installedListCmd)
}

var installedCmd = &cobra.Command{
	Use:   "installed",
	Short: "Manage the installed-packages snapshot stored in the database",
}

var installedImportCmd = &cobra.Command{
	Use:           "import",
	Short:         "Replace the stored snapshot from a file or a connected device",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		var packages []*domain.InstalledPackage
		if path := mustString(cmd, "file"); path != "" {
			packages, err = installed.LoadSnapshotFile(path)
		} else {
			client := newADBClient(cfg, logger)
			if err := client.Connect(ctx); err != nil {
				return err
			}
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			packages, err = installed.NewADBProvider(client, cfg.Analysis.CacheDir, logger).Snapshot(ctx, concurrency)
		}
		if err != nil {
			return err
		}
		if len(packages) == 0 {
			return errors.New("snapshot is empty, refusing to clear the stored packages")
		}

		db, err := repository.InitDB(&cfg.Database, logger)
		if err != nil {
			return err
		}
		if err := repository.NewInstalledPackageRepository(db, logger).Replace(ctx, packages); err != nil {
			return err
		}
		fmt.Printf("imported %d packages\n", len(packages))
		return nil
	},
}

var installedListCmd = &cobra.Command{
	Use:           "list [QUERY]",
	Aliases:       []string{"ls"},
	Short:         "List stored packages, filtered by package name or label (pinyin initials work)",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		db, err := repository.InitDB(&cfg.Database, logger)
		if err != nil {
			return err
		}
		packages, err := repository.NewInstalledPackageRepository(db, logger).List(cmd.Context())
		if err != nil {
			return err
		}
		if len(args) == 1 {
			packages = installed.Filter(packages, args[0])
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PACKAGE\tLABEL\tVERSION\tSYSTEM")
		for _, pkg := range packages {
			fmt.Fprintf(tw, "%s\t%s\t%s (%d)\t%t\n", pkg.PackageName, pkg.Label, pkg.VersionName, pkg.VersionCode, pkg.IsSystemApp)
		}
		return tw.Flush()
	},
}
