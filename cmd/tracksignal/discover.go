package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/tracksignal/internal/config"
	"github.com/sydlexius/tracksignal/internal/watcher"
)

func newDiscoverCommand(opts *rootOptions) *cobra.Command {
	var (
		patterns []string
		jsonMode bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List now-playing text files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(patterns) == 0 {
				cfg, err := opts.load()
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				patterns = cfg.Files.SearchPatterns
			}
			files, err := watcher.DiscoverTextFiles(patterns)
			if err != nil {
				return err
			}
			if files == nil {
				files = []watcher.FileCandidate{}
			}

			out := cmd.OutOrStdout()
			if jsonMode {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "No files found.")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{
					f.Path,
					f.ModTime.Local().Format(time.DateTime),
					strconv.FormatInt(f.Size, 10),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Path", "Modified", "Bytes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "Glob pattern to search (repeatable, replaces configured patterns)")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <username>",
		Short: "Report whether a live playlist is public",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return checkSource(cmd, cfg, args[0])
		},
	}
}

func checkSource(cmd *cobra.Command, cfg *config.Config, username string) error {
	logManager, logger := cliLogger(cfg)
	defer func() { _ = logManager.Close() }()

	rc := remoteConfig(cfg)
	rc.Username = username
	res, err := watcher.CheckRemote(cmd.Context(), rc)
	if err != nil && res.URL == "" {
		return err
	}
	if err != nil {
		logger.Debug("live playlist check failed", "url", res.URL, "error", err)
	}

	status := "private or offline"
	if res.Public {
		status = "public"
	}
	rows := [][]string{
		{"URL", res.URL},
		{"Status", status},
	}
	if res.StatusCode != 0 {
		rows = append(rows, []string{"HTTP", strconv.Itoa(res.StatusCode)})
	}
	if res.Error != "" {
		rows = append(rows, []string{"Error", res.Error})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return err
}
