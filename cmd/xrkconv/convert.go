package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/xrkconv"
	"github.com/aretw0/xrkconv/internal/cli"
	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert one file locally",
	Long: `Runs the same pipeline as the server for a single local file and writes the
result into --out. Multi-file results arrive as a zip archive unless --extract
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringP("out", "o", ".", "Directory to write the result into")
	convertCmd.Flags().Bool("extract", false, "Unpack archive results into --out")
}

func runConvert(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	extract, _ := cmd.Flags().GetBool("extract")

	interrupts := cli.WatchInterrupts(cmd.Context(), nil)
	defer interrupts.Stop()

	app, err := setup(interrupts, cmd, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	d, err := app.Service.Convert(interrupts, xrkconv.Upload{Name: filepath.Base(args[0]), Body: in})
	if err != nil {
		if res := domain.ResultOf(err); res != nil {
			stderr := cmd.ErrOrStderr()
			fmt.Fprintf(stderr, "--- converter stdout ---\n%s", res.Stdout)
			fmt.Fprintf(stderr, "--- converter stderr ---\n%s", res.Stderr)
		}
		return err
	}
	defer d.Close()

	paths, err := d.SaveTo(outDir, extract)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if extract && d.Archive {
		for _, path := range paths {
			fmt.Fprintln(out, path)
		}
		return nil
	}
	fmt.Fprintf(out, "%s blake3=%s\n", paths[0], d.Digest)
	return nil
}
