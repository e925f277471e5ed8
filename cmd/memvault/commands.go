package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alucardeht/memvault/internal/daemon"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")
		return callAndPrint("records_list", map[string]interface{}{
			"category": category,
			"limit":    limit,
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <record-id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint("records_get", map[string]interface{}{"record_id": args[0]})
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <query>",
	Short: "Match records against the memory service and resolve their folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		rewrite, _ := cmd.Flags().GetBool("rewrite")
		return callAndPrint("records_match", map[string]interface{}{
			"query":   args[0],
			"limit":   limit,
			"rewrite": rewrite,
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories and local records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")
		rewrite, _ := cmd.Flags().GetBool("rewrite")
		return callAndPrint("records_search", map[string]interface{}{
			"query":    args[0],
			"category": category,
			"limit":    limit,
			"rewrite":  rewrite,
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <record-id>",
	Short: "Show the resolved folder, primary file and auxiliary files of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return callAndPrint("records_download_info", map[string]interface{}{"record_id": args[0]})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <record-id>",
	Short: "Copy a record's primary file to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		if dest != "" {
			abs, err := filepath.Abs(dest)
			if err != nil {
				return err
			}
			dest = abs
		}
		return callAndPrint("records_download", map[string]interface{}{
			"record_id": args[0],
			"dest_dir":  dest,
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <record-id>...",
	Short: "Delete records, optionally with their storage folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removeFiles, _ := cmd.Flags().GetBool("remove-files")
		return callAndPrint("records_delete", map[string]interface{}{
			"record_ids":          args,
			"remove_from_storage": removeFiles,
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Store files as records and submit them to the memory service",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		note, _ := cmd.Flags().GetString("note")
		simplified, _ := cmd.Flags().GetString("simplified-path")

		paths, err := absPaths(args)
		if err != nil {
			return err
		}
		return callAndPrint("records_upload", map[string]interface{}{
			"paths":           paths,
			"category":        category,
			"user_input":      note,
			"simplified_path": simplified,
		})
	},
}

var writingEventCmd = &cobra.Command{
	Use:   "writing-event <output-dir>",
	Short: "Register the outputs of a finished writing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, _ := cmd.Flags().GetString("job")
		query, _ := cmd.Flags().GetString("query")
		pdf, _ := cmd.Flags().GetString("pdf")
		tex, _ := cmd.Flags().GetString("tex")
		dataFiles, _ := cmd.Flags().GetStringSlice("data")

		dir, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return callAndPrint("records_writing_event", map[string]interface{}{
			"output_directory": dir,
			"job_id":           jobID,
			"query":            query,
			"output_pdf":       pdf,
			"output_tex":       tex,
			"data_files":       dataFiles,
		})
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <topic>",
	Short: "Print retrieved memories formatted for a writing prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxChars, _ := cmd.Flags().GetInt("max-chars")
		return callAndPrint("memory_context", map[string]interface{}{
			"topic":     args[0],
			"max_chars": maxChars,
		})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List records whose storage folder has disappeared",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scan, _ := cmd.Flags().GetBool("scan")
		return callAndPrint("storage_orphans", map[string]interface{}{"scan": scan})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show daemon health and index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *daemon.Client) error {
			ping, err := c.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("daemon pid %d, up %.0fs, %d tools\n", ping.PID, ping.UptimeSeconds, ping.Tools)

			var result map[string]interface{}
			if err := c.CallTool(ctx, "health", nil, &result); err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the daemon exposes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *daemon.Client) error {
			infos, err := c.ListTools(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\n", info.Name, info.Title)
			}
			return w.Flush()
		})
	},
}

func init() {
	listCmd.Flags().String("category", "", "Only records of this category")
	listCmd.Flags().Int("limit", 50, "Maximum records")

	matchCmd.Flags().Int("limit", 10, "Maximum records")
	matchCmd.Flags().Bool("rewrite", false, "Rewrite the query before retrieval")

	searchCmd.Flags().String("category", "", "Only local records of this category")
	searchCmd.Flags().Int("limit", 10, "Maximum local records")
	searchCmd.Flags().Bool("rewrite", false, "Rewrite the query before retrieval")

	downloadCmd.Flags().String("dest", "", "Destination directory (daemon downloads dir when empty)")

	deleteCmd.Flags().Bool("remove-files", false, "Also remove the record folders from storage")

	uploadCmd.Flags().String("category", "", "Force a category instead of inferring it from the extension")
	uploadCmd.Flags().String("note", "", "Free text stored with the record")
	uploadCmd.Flags().String("simplified-path", "", "Display path stored with the record")

	writingEventCmd.Flags().String("job", "", "Writing job id")
	writingEventCmd.Flags().String("query", "", "Query that produced the document")
	writingEventCmd.Flags().String("pdf", "", "Output PDF (first final/*.pdf when empty)")
	writingEventCmd.Flags().String("tex", "", "Output TeX source")
	writingEventCmd.Flags().StringSlice("data", nil, "Data files used by the job")

	contextCmd.Flags().Int("max-chars", 4000, "Maximum characters of context")

	orphansCmd.Flags().Bool("scan", false, "Rescan the owner's records instead of reporting watcher findings")
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
