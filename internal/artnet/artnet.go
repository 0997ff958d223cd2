package artnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Haba1234/go-artnet"

	"usbprobridge/internal/config"
	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
)

// sender is the part of artnet.Controller used here.
type sender interface {
	Start() error
	Stop()
	SendDMXToAddress(dmx [512]byte, address artnet.Address)
}

// ArtNet is transport for the ArtNet protocol (DMX over UDP/IP).
type ArtNet struct {
	logger      *logger.Log
	sender      sender
	nodes       func() []*artnet.ControlledNode
	state       *State
	sendTrigger chan UniverseStateMap
	ctx         context.Context
}

// Controller is a convenience interface to use within this application.
type Controller interface {
	SetUniverse(universe uint16, data dmx.Buffer)
	Start(ctx context.Context) error
	Stop()
}

// NewController returns an art-net Controller bound to the interface inside cfg.Network.
func NewController(log logger.Logger, cfg config.ArtNetConf) (*ArtNet, error) {
	ip, err := FindArtNetIP(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to find the art-net IP: %w", err)
	}

	if len(ip) == 0 {
		return nil, errors.New("failed to find the art-net IP: No interface found")
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hostname: %w", err)
	}

	host = strings.ToLower(strings.Split(host, ".")[0])
	l := log.With(logger.Fields{"module": "art-net"})
	l.Infof("Using ArtNet IP %s and hostname %s", ip.String(), host)

	senderLogger := artnet.NewDefaultLogger("info")
	if log.GetLevel() == "debug" {
		senderLogger = artnet.NewDefaultLogger("debug")
	}

	fps := cfg.MaxFPS
	if fps <= 0 {
		fps = 40
	}
	c := artnet.NewController(host, ip, senderLogger, artnet.MaxFPS(fps))

	control := newArtNet(l, c)
	control.nodes = func() []*artnet.ControlledNode { return c.Nodes }
	return control, nil
}

func newArtNet(l *logger.Log, s sender) *ArtNet {
	return &ArtNet{
		logger:      l,
		sender:      s,
		state:       NewState(),
		sendTrigger: make(chan UniverseStateMap, 100),
	}
}

// Start the ArtNet.
func (c *ArtNet) Start(ctx context.Context) error {
	if err := c.sender.Start(); err != nil {
		return fmt.Errorf("failed to start Controller: %w", err)
	}

	c.ctx = ctx
	go c.sendBackground()
	if c.nodes != nil {
		go c.debugDevices()
	}
	return nil
}

// Stop the ArtNet.
func (c *ArtNet) Stop() {
	c.sender.Stop()
}

// SetUniverse replaces the state of one universe and schedules a send.
func (c *ArtNet) SetUniverse(universe uint16, data dmx.Buffer) {
	c.state.SetUniverse(universe, Universe(data))
	c.triggerSend()
}

func (c *ArtNet) triggerSend() {
	select {
	case c.sendTrigger <- c.state.Get():
	default:
		c.logger.Debug("DMX. Очередь отправки заполнена, кадр пропущен")
	}
}

func (c *ArtNet) sendBackground() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.sendTrigger:
			for u, universe := range data {
				// u - адрес.
				// universe - массив данных 512 байт.
				c.logger.Debugf("DMX. Отправка в контроллер по адресу %v", u)
				c.sender.SendDMXToAddress(universe.toByteSlice(), universeToAddress(u))
			}
		}
	}
}

// universeToAddress converts a dmx universe to art-net address
// universe: старший байт - Net, младший байт - SubUni.
func universeToAddress(universe uint16) artnet.Address {
	v := make([]uint8, 2)
	binary.BigEndian.PutUint16(v, universe)

	return artnet.Address{
		Net:    v[0],
		SubUni: v[1],
	}
}

// NodeToString returns a string representation of the given Node.
func NodeToString(n *artnet.ControlledNode) string {
	var inputs, outputs []string
	for _, p := range n.Node.InputPorts {
		inputs = append(inputs, fmt.Sprintf("%s: %s", p.Address.String(), p.Type.String()))
	}

	for _, p := range n.Node.OutputPorts {
		outputs = append(outputs, fmt.Sprintf("%s: %s", p.Address.String(), p.Type.String()))
	}

	return fmt.Sprintf(
		" | IP=%s name=%q type=%q manufacturer=%q desc=%q inputs=%q outputs=%q",
		n.UDPAddress.String(), n.Node.Name, n.Node.Type,
		n.Node.Manufacturer, n.Node.Description,
		strings.Join(inputs, "; "), strings.Join(outputs, "; "),
	)
}

func (c *ArtNet) debugDevices() {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			nodes := c.nodes()
			var ips []string
			for _, n := range nodes {
				ips = append(ips, NodeToString(n))
			}
			c.logger.Debugf("Currently %d devices are registered: %v", len(nodes), ips)
		}
	}
}
