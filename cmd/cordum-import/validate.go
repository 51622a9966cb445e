package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cordum/cordum-import/core/backup/report"
)

func newValidateCommand(_ *rootOptions) *cobra.Command {
	var (
		file     string
		version  int
		sanitize bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a report document against a report schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// #nosec G304 -- report path is provided by the local operator.
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			if sanitize {
				if data, err = report.SanitizeJSON(data); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if _, err := report.ValidateJSON(version, data); err != nil {
				var serr *report.SchemaError
				if !errors.As(err, &serr) {
					return err
				}
				for _, v := range serr.Violations {
					fmt.Fprintln(out, v)
				}
				return fmt.Errorf("report does not conform to schema version %d (%d violations)", version, len(serr.Violations))
			}
			fmt.Fprintf(out, "report conforms to schema version %d\n", version)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "report JSON file")
	cmd.Flags().IntVar(&version, "version", report.LatestVersion, "report schema version")
	cmd.Flags().BoolVar(&sanitize, "sanitize", false, "drop unrecognised resource event fields before validating")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
