package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/castai/rds-iops-exporter/cmd/exporter/app"
	"github.com/castai/rds-iops-exporter/cmd/exporter/collector"
)

var errCheckFailed = errors.New("some instances failed")

func newCheckCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single collection cycle and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := app.New(appConfig(v))
			if err != nil {
				return err
			}
			outcomes, gauges, err := a.CollectOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderOutcomes(outcomes, gauges))

			if lo.SomeBy(outcomes, func(o collector.Outcome) bool { return o.Err != nil }) {
				return errCheckFailed
			}
			return nil
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func renderOutcomes(outcomes []collector.Outcome, gauges []string) string {
	ok := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed).SprintFunc()

	t := table.NewWriter()
	header := table.Row{"Instance", "Region", "Status"}
	for _, g := range gauges {
		header = append(header, g)
	}
	header = append(header, "Duration")
	t.AppendHeader(header)
	t.SetStyle(table.StyleLight)

	for _, o := range outcomes {
		row := table.Row{o.Instance.ID, o.Instance.Region}
		if o.Err != nil {
			row = append(row, failed("error: "+o.Err.Error()))
		} else {
			row = append(row, ok("ok"))
		}
		for _, g := range gauges {
			val, found := o.Updates.Get(g)
			if !found {
				row = append(row, "-")
				continue
			}
			row = append(row, strconv.FormatFloat(val, 'f', -1, 64))
		}
		row = append(row, o.Duration.Round(time.Millisecond).String())
		t.AppendRow(row)
	}
	return t.Render()
}
