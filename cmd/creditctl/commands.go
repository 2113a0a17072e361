package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ineyio/creditsync"
	"github.com/ineyio/creditsync/fetcher/httpapi"
	"github.com/ineyio/creditsync/meter"
)

func newBalanceCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Read the authoritative credit balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := httpapi.FromConfig(a.cfg.Endpoint)
			if err != nil {
				return err
			}

			sess, err := creditsync.NewSession(client,
				creditsync.WithConfig(a.cfg),
				creditsync.WithLogger(a.logger),
				creditsync.WithMeter(meter.NewLogMeter(a.logger)),
			)
			if err != nil {
				return err
			}
			defer sess.Close()

			b, err := sess.Load(cmd.Context())
			if err != nil {
				if sess.HandleError(err) {
					return fmt.Errorf("plan limit reached: %w", err)
				}
				return err
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d credits remaining (%s)\n", b.Remaining, b.Tier)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the balance as JSON")
	return cmd
}

// classificationOutput is the printable form of a Classification.
type classificationOutput struct {
	Limit   bool                 `json:"limit"`
	Kind    creditsync.LimitKind `json:"kind,omitempty"`
	Current *int64               `json:"current,omitempty"`
	Max     *int64               `json:"max,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	var status int

	cmd := &cobra.Command{
		Use:   "classify MESSAGE",
		Short: "Classify a server refusal message as a plan limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := creditsync.ClassifyLimitError(status, args[0])
			out := classificationOutput{Limit: ok}
			if ok {
				out.Kind, out.Current, out.Max = c.Kind, c.Current, c.Max
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		},
	}
	cmd.Flags().IntVar(&status, "status", 403, "HTTP status code of the refusal")
	return cmd
}

func newEstimateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate FEATURE [UNITS]",
		Short: "Estimate the credit cost of a feature from the config cost table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			units := int64(1)
			if len(args) == 2 {
				n, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("units: %w", err)
				}
				units = n
			}
			cost, err := a.cfg.Costs.Estimate(args[0], units)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", cost)
			return nil
		},
	}
}
