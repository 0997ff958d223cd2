package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"usbprobridge/internal/artnet"
	"usbprobridge/internal/bridge"
	"usbprobridge/internal/clientmqtt"
	"usbprobridge/internal/config"
	"usbprobridge/internal/device"
	"usbprobridge/internal/logger"
	"usbprobridge/internal/metrics"
	"usbprobridge/internal/serialport"
	"usbprobridge/internal/usbpro"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge for all configured widgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, log, cfg.Metrics.Listen, reg); err != nil {
				log.Error("failed to serve metrics:", err.Error())
				cancel()
			}
		}()
	}

	devices := device.NewRegistry(log)
	opts := []bridge.Option{bridge.WithCounter(m)}

	var a *artnet.ArtNet
	if cfg.ArtNet.Enabled {
		a, err = artnet.NewController(log, cfg.ArtNet)
		if err != nil {
			return fmt.Errorf("error while creating a new controller art-net: %w", err)
		}
		if err = a.Start(ctx); err != nil {
			return fmt.Errorf("failed to start art-net service: %w", err)
		}
		log.With(logger.Fields{"module": "art-net"}).Debug("NewController created ok")
		opts = append(opts, bridge.WithSink(a))
	}

	// Канал для передачи команд из MQTT.
	commands := make(chan clientmqtt.Command, 10)

	var client *clientmqtt.ClientMQTT
	if cfg.MQTT.Enabled {
		client = clientmqtt.NewClient(log, ConvertConfigClientMQTT(cfg.MQTT))
		if err = client.Start(ctx, commands); err != nil {
			if a != nil {
				a.Stop()
			}
			return fmt.Errorf("failed to start MQTT service: %w", err)
		}
		opts = append(opts, bridge.WithPublisher(client))
	}

	b := bridge.New(log, devices, opts...)

	var wg sync.WaitGroup
	for _, wc := range cfg.Widgets {
		if err := startWidget(ctx, log, m, devices, b, wc, &wg); err != nil {
			log.With(logger.Fields{"widget": wc.Name}).Errorf("failed to start widget: %v", err)
			continue
		}
		if client != nil {
			client.Subscribe(wc.Name)
		}
	}

	go b.HandleCommands(ctx, commands)

	<-ctx.Done()

	if client != nil {
		if err := client.Stop(); err != nil {
			log.Error("failed to stop MQTT service:", err.Error())
		}
	}
	if a != nil {
		a.Stop()
	}
	if err := devices.CloseAll(); err != nil {
		log.Error("failed to close devices:", err.Error())
	}
	wg.Wait()

	log.Info("shutdown complete")
	return nil
}

func startWidget(ctx context.Context, log *logger.Log, m *metrics.Metrics, devices *device.Registry,
	b *bridge.Bridge, wc config.WidgetConf, wg *sync.WaitGroup) error {
	port, err := serialport.Open(serialport.Conf{Device: wc.Device, Baud: wc.Baud})
	if err != nil {
		return err
	}

	w := usbpro.NewWidget(port, log, usbpro.WidgetConf{
		Name:           wc.Name,
		RequestTimeout: wc.ParamsTimeout.Duration,
		Observer:       m.Widget(wc.Name),
	})
	if err := devices.Register(usbpro.NewDevice(w)); err != nil {
		w.Close()
		return err
	}

	wlog := log.With(logger.Fields{"widget": wc.Name})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil {
			wlog.Errorf("read loop stopped: %v", err)
			if err := devices.Unregister(wc.Name); err != nil {
				wlog.Debugf("unregister: %v", err)
			}
		}
	}()

	if wc.Params != nil {
		if err := w.SetParameters(wc.Params.BreakTime, wc.Params.MABTime, wc.Params.Rate); err != nil {
			wlog.Warnf("failed to set parameters: %v", err)
		}
	}
	w.GetParameters(func(ok bool, p usbpro.Parameters) {
		if ok {
			wlog.Infof("parameters: %s", p)
		}
	})
	w.GetSerialNumber(func(ok bool, s usbpro.SerialNumber) {
		if ok {
			wlog.Infof("serial number: %s", s)
		}
	})

	if wc.Mode == config.ModeInput {
		return attachInput(devices, b, w, wc)
	}
	return nil
}

// attachInput switches the widget to receive mode and forwards its input.
// On failure the widget is unregistered, which also closes it.
func attachInput(devices *device.Registry, b *bridge.Bridge, w *usbpro.Widget, wc config.WidgetConf) error {
	err := b.AttachInput(wc.Name, wc.Universe)
	if err == nil {
		if err = w.ChangeToReceiveMode(wc.ChangeOnly); err != nil {
			err = fmt.Errorf("failed to switch to receive mode: %w", err)
		}
	}
	if err != nil {
		if uerr := devices.Unregister(wc.Name); uerr != nil {
			return errors.Join(err, uerr)
		}
		return err
	}
	return nil
}
