package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewAnalyzeCommand lists the videos behind a playlist or video URL
func NewAnalyzeCommand(e *env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "List the videos of a playlist without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playlist, err := e.analyzer().Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(playlist)
			}

			if playlist.Title != "" {
				fmt.Fprintln(out, playlist.Title)
			}
			for i, v := range playlist.Videos {
				if v.Duration != "" {
					fmt.Fprintf(out, "%3d. %s [%s]\n", i+1, v.Title, v.Duration)
				} else {
					fmt.Fprintf(out, "%3d. %s\n", i+1, v.Title)
				}
			}
			fmt.Fprintf(out, "%d videos\n", playlist.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the playlist as JSON")
	return cmd
}
