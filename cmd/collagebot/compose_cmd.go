package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/quailyquaily/collagebot/collage"
	"github.com/quailyquaily/collagebot/internal/clifmt"
	"github.com/quailyquaily/collagebot/internal/fsstore"
	"github.com/quailyquaily/collagebot/internal/pathutil"
	"github.com/spf13/cobra"
)

func newComposeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose -o out.jpg photo1 photo2 [...]",
		Short: "Build a vertical collage from image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("output")
			out = pathutil.ExpandHomePath(strings.TrimSpace(out))
			if out == "" {
				return fmt.Errorf("missing --output")
			}
			opts, err := collageOptionsFromCmd(cmd)
			if err != nil {
				return err
			}

			blobs := make([][]byte, 0, len(args))
			for _, p := range args {
				raw, err := os.ReadFile(pathutil.ExpandHomePath(p))
				if err != nil {
					return fmt.Errorf("read %s: %w", p, err)
				}
				blobs = append(blobs, raw)
			}

			res, err := collage.Compose(blobs, opts)
			if len(res.Skipped) > 0 {
				rows := make([]clifmt.NameDetailRow, 0, len(res.Skipped))
				for _, skipped := range res.Skipped {
					rows = append(rows, clifmt.NameDetailRow{Name: args[skipped.Index], Detail: skipped.Err.Error()})
				}
				clifmt.PrintNameDetailTable(cmd.ErrOrStderr(), clifmt.NameDetailTableOptions{
					Title:        "Skipped",
					Rows:         rows,
					NameHeader:   "FILE",
					DetailHeader: "REASON",
				})
			}
			if err != nil {
				if errors.Is(err, collage.ErrNoValidImages) {
					return fmt.Errorf("none of the %d file(s) could be decoded", len(args))
				}
				return err
			}

			if err := fsstore.WriteFileAtomic(out, res.JPEG, fsstore.FileOptions{DirPerm: 0o755, FilePerm: 0o644}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %d photo(s)\n", out, res.Width, res.Height, res.Composed)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "collage.jpg", "Output JPEG path.")
	addCollageFlags(cmd)

	return cmd
}
