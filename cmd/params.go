package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"usbprobridge/internal/config"
	"usbprobridge/internal/logger"
	"usbprobridge/internal/serialport"
	"usbprobridge/internal/usbpro"
)

type paramsFlags struct {
	device  string
	baud    int
	timeout time.Duration
}

func paramsCmd() *cobra.Command {
	var f paramsFlags
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Read or write the timing parameters of a single widget",
	}
	cmd.PersistentFlags().StringVar(&f.device, "device", "/dev/ttyUSB0", "Serial device of the widget")
	cmd.PersistentFlags().IntVar(&f.baud, "baud", serialport.DefaultBaud, "Baud rate")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 2*time.Second, "Reply timeout")

	cmd.AddCommand(paramsGetCmd(&f), paramsSetCmd(&f))
	return cmd
}

func paramsGetCmd(f *paramsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print firmware version, timing parameters and serial number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWidget(cmd.Context(), f, func(ctx context.Context, w *usbpro.Widget) error {
				p, err := w.Parameters(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)

				s, err := w.SerialNumber(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "serial=%s\n", s)
				return nil
			})
		},
	}
}

func paramsSetCmd(f *paramsFlags) *cobra.Command {
	var breakTime, mabTime, rate uint8
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write timing parameters and read them back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWidget(cmd.Context(), f, func(ctx context.Context, w *usbpro.Widget) error {
				if err := w.SetParameters(breakTime, mabTime, rate); err != nil {
					return err
				}
				p, err := w.Parameters(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
	cmd.Flags().Uint8Var(&breakTime, "break", 9, "Break time in 10.67us units")
	cmd.Flags().Uint8Var(&mabTime, "mab", 1, "Mark after break in 10.67us units")
	cmd.Flags().Uint8Var(&rate, "rate", 40, "Packets per second, 0 for maximum")
	return cmd
}

// withWidget opens the widget, runs its read loop for the duration of fn and closes it.
func withWidget(parent context.Context, f *paramsFlags, fn func(ctx context.Context, w *usbpro.Widget) error) error {
	if parent == nil {
		parent = context.Background()
	}
	log, err := logger.NewLogger(config.LogConf{Level: "warn"})
	if err != nil {
		return err
	}

	port, err := serialport.Open(serialport.Conf{Device: f.device, Baud: f.baud})
	if err != nil {
		return err
	}
	w := usbpro.NewWidget(port, log, usbpro.WidgetConf{Name: f.device, RequestTimeout: f.timeout})
	defer w.Close()

	ctx, cancel := context.WithTimeout(parent, f.timeout+time.Second)
	defer cancel()
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Debugf("read loop: %v", err)
		}
	}()

	return fn(ctx, w)
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialport.List()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
