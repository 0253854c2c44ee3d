package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/tracksignal/internal/parser"
	"github.com/sydlexius/tracksignal/internal/track"
)

// maxParseInput caps how much of a file or stdin the parse command reads.
const maxParseInput = 4 << 20

func newParseCommand() *cobra.Command {
	var (
		kind     string
		jsonMode bool
	)
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Extract artist and title candidates from a file or stdin",
		Long: "Runs the parsing strategies over a now-playing text file or a saved\n" +
			"live playlist page and prints every candidate, best first.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk := track.SourceKind(kind)
			if sk != track.SourceFile && sk != track.SourceRemoteHTML {
				return fmt.Errorf("invalid kind %q (want %s or %s)", kind, track.SourceFile, track.SourceRemoteHTML)
			}

			in := cmd.InOrStdin()
			source := "stdin"
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in, source = f, args[0]
			}
			data, err := io.ReadAll(io.LimitReader(in, maxParseInput))
			if err != nil {
				return fmt.Errorf("reading %s: %w", source, err)
			}

			cands := parser.Default().Parse(track.RawSignal{
				Text:       string(data),
				Kind:       sk,
				SourceID:   source,
				CapturedAt: time.Now(),
			})
			if cands == nil {
				cands = []track.Candidate{}
			}

			out := cmd.OutOrStdout()
			if jsonMode {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cands)
			}
			if len(cands) == 0 {
				fmt.Fprintln(out, "No track found.")
				return nil
			}
			rows := make([][]string, 0, len(cands))
			for _, c := range cands {
				rows = append(rows, []string{
					c.Artist,
					c.Title,
					strconv.FormatFloat(c.Confidence, 'f', 2, 64),
					c.Strategy,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Artist", "Title", "Confidence", "Strategy"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(track.SourceFile), "Input kind: file or remote_html")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Emit JSON instead of a table")
	return cmd
}
