package main

import (
	"errors"
	"testing"

	"usbprobridge/internal/bridge"
	"usbprobridge/internal/config"
	"usbprobridge/internal/device"
	"usbprobridge/internal/logger"
	"usbprobridge/internal/usbpro"
)

// brokenPort accepts no writes.
type brokenPort struct {
	closed bool
}

func (p *brokenPort) Read([]byte) (int, error) { return 0, errors.New("read failed") }
func (p *brokenPort) Write([]byte) (int, error) { return 0, errors.New("write failed") }
func (p *brokenPort) Close() error {
	p.closed = true
	return nil
}

func TestAttachInputFailureUnregisters(t *testing.T) {
	devices := device.NewRegistry(logger.Discard())
	port := &brokenPort{}
	w := usbpro.NewWidget(port, logger.Discard(), usbpro.WidgetConf{Name: "in"})
	if err := devices.Register(usbpro.NewDevice(w)); err != nil {
		t.Fatal(err)
	}
	b := bridge.New(logger.Discard(), devices)

	err := attachInput(devices, b, w, config.WidgetConf{Name: "in", Mode: config.ModeInput, ChangeOnly: true})
	if !errors.Is(err, usbpro.ErrSendFailed) {
		t.Errorf("attachInput() error = %v, want ErrSendFailed", err)
	}
	if _, ok := devices.Get("in"); ok {
		t.Error("widget still registered")
	}
	if !port.closed {
		t.Error("port not closed")
	}
}

func TestAttachInputMissingDevice(t *testing.T) {
	devices := device.NewRegistry(logger.Discard())
	w := usbpro.NewWidget(&brokenPort{}, logger.Discard(), usbpro.WidgetConf{Name: "ghost"})
	b := bridge.New(logger.Discard(), devices)

	err := attachInput(devices, b, w, config.WidgetConf{Name: "ghost"})
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("attachInput() error = %v, want ErrNotFound", err)
	}
}
