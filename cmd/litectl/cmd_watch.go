package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/localnerve/lite/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest files dropped into <dir>/<case-id>/ until interrupted",
		Long:  "Watches dir (default WATCH_FOLDER). Each numeric sub-folder is a case id;\nJSON files written there are moved to the upload folder and ingested.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := e.cfg.WatchFolder
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no folder to watch, pass one or set WATCH_FOLDER")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			success(cmd.OutOrStdout(), "Watching %s, Ctrl-C to stop", dir)
			return watch.New(e.db, dir, e.cfg.UploadFolder, e.runner).Run(ctx)
		},
	}
}
