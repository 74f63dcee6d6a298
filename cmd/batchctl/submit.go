package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dailyyoga/contractflow/batch"
	"github.com/spf13/cobra"
)

// contractItem is the item sent for a file that is not itself JSON.
type contractItem struct {
	Filename string `json:"filename"`
	Text     string `json:"contract_text"`
}

func newSubmitCmd(a *app) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "submit FILE...",
		Short: "Submit contract files as one batch",
		Long: "Submit contract files as one batch. A file holding a JSON object is sent as is;\n" +
			"any other file is sent as {filename, contract_text}. Use - to read one item from stdin.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.teardown()

			items, err := readItems(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			job, err := a.orc.SubmitBatch(cmd.Context(), items)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "submitted batch %s with %d items\n", job.ID(), len(items))
			if detach {
				return nil
			}

			updates, interrupted := job.Updates(), cmd.Context().Done()
			for following := true; following; {
				select {
				case snap, ok := <-updates:
					if !ok {
						following = false
						break
					}
					st := snap.Stats()
					fmt.Fprintf(out, "%s %s %d/%d done (%s%%)\n",
						snap.ID, snap.Status, st.Completed+st.Failed, st.Total, st.Progress.StringFixed(2))
				case <-interrupted:
					// the terminal snapshot still arrives and closes the stream
					job.Cancel()
					interrupted = nil
				}
			}
			snap := job.Snapshot()
			if err := printJSON(out, summarize(snap)); err != nil {
				return err
			}
			if snap.Status != batch.StatusCompleted {
				return fmt.Errorf("batch %s ended %s", snap.ID, snap.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "return after submitting instead of following the job")
	return cmd
}

func readItems(stdin io.Reader, args []string) ([]json.RawMessage, error) {
	items := make([]json.RawMessage, 0, len(args))
	for _, name := range args {
		var (
			data []byte
			err  error
		)
		if name == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			return nil, err
		}

		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) == nil {
			items = append(items, json.RawMessage(data))
			continue
		}
		b, err := json.Marshal(contractItem{Filename: filepath.Base(name), Text: string(data)})
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

// summary is the final report printed for a job.
type summary struct {
	BatchID     string       `json:"batch_id"`
	Status      batch.Status `json:"status"`
	Total       int          `json:"total"`
	Completed   int          `json:"completed"`
	Failed      int          `json:"failed"`
	SuccessRate string       `json:"success_rate"`
	Polls       int          `json:"polls"`
	Elapsed     string       `json:"elapsed"`
	Error       string       `json:"error,omitempty"`
	Items       []batch.Item `json:"items"`
}

func summarize(snap batch.Snapshot) summary {
	st := snap.Stats()
	s := summary{
		BatchID:     snap.ID,
		Status:      snap.Status,
		Total:       st.Total,
		Completed:   st.Completed,
		Failed:      st.Failed,
		SuccessRate: st.SuccessRate.StringFixed(2),
		Polls:       snap.Polls,
		Elapsed:     st.Elapsed.String(),
		Items:       snap.Items,
	}
	if snap.Err != nil {
		s.Error = snap.Err.Error()
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
