package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/docutag/scout/api"
	"github.com/docutag/scout/drafting"
	"github.com/docutag/scout/models"
)

var (
	draftFile string
	draftLink string
)

var expandCmd = &cobra.Command{
	Use:   "expand [keyword]",
	Short: "Expand a root keyword into search variations",
	Args:  cobra.ExactArgs(1),
	RunE:  runExpand,
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft three replies for each thread in a JSON batch",
	Long: `Reads {"threads": [{"id": "...", "text": "..."}], "link": "..."} from --file
(or stdin when --file is "-") and prints the drafted replies. An empty draft
list means the model answer was unusable and the batch should be retried.`,
	RunE: runDraft,
}

func init() {
	draftCmd.Flags().StringVarP(&draftFile, "file", "f", "-", "JSON batch of threads, - for stdin")
	draftCmd.Flags().StringVar(&draftLink, "link", "", "Link to weave into replies (overrides the batch)")

	rootCmd.AddCommand(expandCmd, draftCmd)
}

func runExpand(cmd *cobra.Command, args []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	variations, err := drafting.NewExpander(cfg.Completer(), nil, cmdLogger()).Expand(ctx, args[0])
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), models.KeywordsResponse{
		Keyword:    args[0],
		Variations: variations,
	})
}

func runDraft(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if draftFile != "-" {
		f, err := os.Open(draftFile)
		if err != nil {
			return fmt.Errorf("failed to open batch: %w", err)
		}
		defer f.Close()
		in = f
	}

	var req models.RepliesRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("failed to parse batch: %w", err)
	}
	if draftLink != "" {
		req.Link = draftLink
	}

	cfg, err := readConfig()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	drafts, err := drafting.NewDrafter(cfg.Completer(), nil, cmdLogger()).Draft(ctx, req.Threads, req.Link)
	if err != nil {
		return err
	}

	resp := models.RepliesResponse{Drafts: drafts}
	if len(drafts) == 0 && len(req.Threads) > 0 {
		resp.Warning = api.WarningDraftsMalformed
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
