package main

import (
	"os"

	"github.com/spf13/cobra"
)

var uploadName string

func init() {
	rootCmd.AddCommand(uploadCmd, importCmd)
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "display name (default: the file's base name)")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <store> <file>",
	Short: "Upload a document and wait until it is indexed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dimColor.Printf("Uploading %s...\n", args[1])
		result, err := a.Service.UploadFile(cmd.Context(), args[0], args[1], uploadName)
		if err != nil {
			return err
		}

		printUpload(os.Stdout, result)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <store> <url>",
	Short: "Fetch a web page and index its text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dimColor.Printf("Fetching %s...\n", args[1])
		result, err := a.Service.ImportURL(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		printUpload(os.Stdout, result)
		return nil
	},
}
