package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dahimi/File-Search-POC/internal/watcher"
)

var (
	watchExisting bool
	watchDebounce time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also upload files already in the folder")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is uploaded")
}

var watchCmd = &cobra.Command{
	Use:   "watch <store> <dir>",
	Short: "Upload documents as they appear in a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w := watcher.New(a.Service, args[0], watcher.Config{
			Debounce: watchDebounce,
			Existing: watchExisting,
			OnEvent: func(e watcher.Event) {
				if e.Err != nil {
					warnColor.Printf("Failed %s: %v\n", e.Path, e.Err)
					return
				}
				printUpload(os.Stdout, e.Result)
			},
		})

		headingColor.Printf("Watching %s (Ctrl+C to stop)\n", args[1])
		return w.Run(cmd.Context(), args[1])
	},
}
