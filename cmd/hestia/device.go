// cmd/hestia/device.go
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/lora"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
)

type statusReport struct {
	Firmware        string               `yaml:"firmware"`
	ServiceMode     string               `yaml:"service_mode"`
	ActiveMode      *uint16              `yaml:"active_mode,omitempty"`
	Status          *status.ModuleStatus `yaml:"status,omitempty"`
	StatusText      string               `yaml:"status_text,omitempty"`
	UploadAvailable *bool                `yaml:"upload_available,omitempty"`
	Identity        *session.Identity    `yaml:"identity,omitempty"`
	Telemetry       *session.Telemetry   `yaml:"telemetry,omitempty"`
	LoRa            *lora.Report         `yaml:"lora,omitempty"`
	Errors          []string             `yaml:"errors,omitempty"`
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var withLoRa bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print identity, telemetry and decoded module status",
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

			r := statusReport{
				Firmware:    s.Firmware(),
				ServiceMode: status.ModeName(s.ServiceMode()),
			}
			fail := func(what string, err error) {
				r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", what, err))
			}

			if m, err := s.ActiveMode(); err != nil {
				fail("active mode", err)
			} else {
				r.ActiveMode = &m
			}
			if st, err := s.ModuleStatus(); err != nil {
				fail("status", err)
			} else {
				r.Status, r.StatusText = &st, st.String()
			}
			if ok, err := s.IsUploadAvailable(); err != nil {
				fail("upload available", err)
			} else {
				r.UploadAvailable = &ok
			}
			if id, err := s.ReadIdentity(); err != nil {
				fail("identity", err)
			} else {
				r.Identity = &id
			}
			if t, err := s.ReadTelemetry(); err != nil {
				fail("telemetry", err)
			} else {
				r.Telemetry = &t
			}
			if withLoRa || len(a.cfg.LoRa.Devices) > 0 {
				if rep, err := lora.QueryReport(cmd.Context(), s); err != nil {
					fail("lora", err)
				} else {
					r.LoRa = &rep
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(r)
		},
	}
	cmd.Flags().BoolVar(&withLoRa, "lora", false, "query the LoRa receive report even with no devices configured")
	return cmd
}

func newATCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "at <command>",
		Short: "Send one AT command through the register bridge",
		Example: `  hestia at AT+CSQ
  hestia at 'AT+BISGET=?'`,
		Args: cobra.MinimumNArgs(1),
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

			resp, err := s.Command(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <payload>",
		Short: "Send one uplink directly, bypassing the queue",
		Args:  cobra.ExactArgs(1),
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

			res, err := s.SendData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d chunk(s): %s\n", res.Chunks, res.Response)
			return nil
		},
	}
}
