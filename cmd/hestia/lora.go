// cmd/hestia/lora.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/lora"
)

func newLoRaCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lora",
		Short: "Provision the LoRa receiver on the PCIe module",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Apply lora.frequency, lora.sf and lora.ch_plan, then save and reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.openOneShot()
			if err != nil {
				return err
			}
			defer s.Stop()

			p := lora.NewProvisioner(s, printProgress(cmd), a.log.With("lora"))
			return p.Configure(cmd.Context(), a.cfg.LoRa.Radio())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "Clear all device slots and write lora.devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.openOneShot()
			if err != nil {
				return err
			}
			defer s.Stop()

			p := lora.NewProvisioner(s, printProgress(cmd), a.log.With("lora"))
			failed, err := p.ConfigureDevices(cmd.Context(), a.cfg.LoRa.LoRaDevices())
			if len(failed) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "slots not acknowledged: %v\n", failed)
			}
			return err
		},
	})

	return cmd
}

func printProgress(cmd *cobra.Command) lora.Progress {
	return func(pct int, msg string) {
		fmt.Fprintf(cmd.OutOrStdout(), "[%3d%%] %s\n", pct, msg)
	}
}
