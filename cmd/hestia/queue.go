// cmd/hestia/queue.go
package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/capture"
)

func newEnqueueCmd(flags *globalFlags) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:     "enqueue <json>",
		Short:   "Append a payload to the uplink queue",
		Example: `  hestia enqueue '{"t":21.5}' --label "Sensor reading"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.openQueue()
			if err != nil {
				return err
			}
			e, err := q.Append(label, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %q at %s\n", e.Label, e.Timestamp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "Manual", "label written above the payload")
	return cmd
}

func newCaptureCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Read the current location fix and queue it for uplink",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.openQueue()
			if err != nil {
				return err
			}
			s, err := a.openOneShot()
			if err != nil {
				return err
			}
			defer s.Stop()

			res, err := capture.Location(s, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %s (%d pending in %s)\n", res.Entry.Payload, res.Pending, res.Path)
			return nil
		},
	}
}

func newQueueCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear the uplink queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending entries, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.openQueue()
			if err != nil {
				return err
			}
			entries, err := q.Entries()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tQUEUED\tLABEL\tPAYLOAD")
			for i, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.Timestamp, e.Label, e.Payload)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every pending entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.openQueue()
			if err != nil {
				return err
			}
			if err := q.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "uplink queue cleared")
			return nil
		},
	})

	return cmd
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uplinks, downlinks and the last snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := a.openHistory()
			if err != nil {
				return err
			}
			doc, err := h.Load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(doc)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear-downlinks",
		Short: "Empty the downlink message ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := a.openHistory()
			if err != nil {
				return err
			}
			if err := h.ClearDownlinks(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "downlink messages cleared")
			return nil
		},
	})

	return cmd
}
