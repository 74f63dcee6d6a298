package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dailyyoga/contractflow/api"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status BATCH_ID",
		Short: "Print the current status of a batch once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.teardown()

			var st *api.BatchStatus
			err := a.orc.Retry(cmd.Context(), func(ctx context.Context) error {
				var err error
				st, err = a.orc.Client().BatchStatus(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze a single contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.teardown()

			items, err := readItems(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			p, err := a.orc.Call(cmd.Context(), &api.Request{
				Method: http.MethodPost,
				Path:   path,
				Body:   items[0],
			})
			if err != nil {
				return err
			}
			if p.Kind == api.KindError {
				return fmt.Errorf("analysis failed: %s", p.Error.Error)
			}
			return printJSON(cmd.OutOrStdout(), p.Raw)
		},
	}
	cmd.Flags().StringVar(&path, "path", "/api/analyze", "analysis endpoint")
	return cmd
}
