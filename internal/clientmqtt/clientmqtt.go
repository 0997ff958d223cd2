package clientmqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"usbprobridge/internal/dmx"
	"usbprobridge/internal/logger"
	"usbprobridge/internal/usbpro"
)

// Topic suffixes under <prefix>/<widget>/.
const (
	topicDMXIn     = "dmx/in"
	topicDMXOut    = "dmx/out"
	topicParams    = "params"
	topicParamsGet = "params/get"
	topicParamsSet = "params/set"
)

// ClientMQTT структура клиента MQTT.
type ClientMQTT struct {
	ctx       context.Context
	log       *logger.Log
	cfgClient MQTTConf
	client    mqtt.Client
	opts      *mqtt.ClientOptions
	commands  chan<- Command
}

// MQTTClient is a convenience interface to use within this application.
type MQTTClient interface {
	Start(ctx context.Context, commands chan<- Command) error
	Stop() error
	Subscribe(widget string)
	PublishDMX(widget string, b dmx.Buffer)
	PublishParams(widget string, ok bool, p usbpro.Parameters)
}

// NewClient конструктор.
func NewClient(log logger.Logger, cfgClient MQTTConf) *ClientMQTT {
	if cfgClient.Schema == "" {
		cfgClient.Schema = "tcp"
	}
	return &ClientMQTT{
		log:       log.With(logger.Fields{"module": "mqtt"}),
		cfgClient: cfgClient,
	}
}

func (c *ClientMQTT) Start(ctx context.Context, commands chan<- Command) error {
	if c.log.GetLevel() == "debug" {
		mqtt.ERROR = log.New(c.log.WriterLevel(logrus.ErrorLevel), "", 0)
		mqtt.CRITICAL = log.New(c.log.WriterLevel(logrus.ErrorLevel), "", 0)
		mqtt.WARN = log.New(c.log.WriterLevel(logrus.WarnLevel), "", 0)
	}

	c.ctx = ctx
	c.commands = commands

	c.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", c.cfgClient.Schema, c.cfgClient.Host, c.cfgClient.Port)).
		SetUsername(c.cfgClient.User).
		SetPassword(c.cfgClient.Password).
		SetDefaultPublishHandler(c.messageHandler).
		SetOnConnectHandler(c.connectHandler).
		SetConnectionLostHandler(c.connectLostHandler).
		SetClientID(c.cfgClient.ClientID).
		SetOrderMatters(true).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	c.client = mqtt.NewClient(c.opts)

	token := c.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	case <-c.ctx.Done():
		return errors.New("context canceled")
	}

	c.log.Infof("Status: %v", c.client.IsConnected())
	return nil
}

func (c *ClientMQTT) Stop() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(500)
	}
	return nil
}

func (c *ClientMQTT) connectHandler(_ mqtt.Client) {
	c.log.Info("client connected to server")
}

func (c *ClientMQTT) connectLostHandler(_ mqtt.Client, err error) {
	c.log.Errorf("server connect lost: %v", err)
}

func (c *ClientMQTT) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.log.Debugf("received message: %s from topic: %s", msg.Payload(), msg.Topic())
	cmd, err := ParseCommand(c.cfgClient.Prefix, msg.Topic(), msg.Payload())
	if err != nil {
		c.log.Errorf("message could not be parsed (%s): %v", msg.Payload(), err)
		return
	}
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	}
}

// Subscribe subscribes to the control topics of a widget.
func (c *ClientMQTT) Subscribe(widget string) {
	for _, suffix := range []string{topicDMXOut, topicParamsGet, topicParamsSet} {
		c.sub(c.topic(widget, suffix))
	}
}

func (c *ClientMQTT) sub(topic string) {
	token := c.client.Subscribe(topic, c.cfgClient.Qos, nil)
	go func() {
		select {
		case <-c.ctx.Done():
			return
		case <-token.Done():
			if token.Error() != nil {
				c.log.Errorf("topic %s subscription error. %v", topic, token.Error())
				return
			}
		}
		c.log.Debugf("topic %s subscribed", topic)
	}()
}

// PublishDMX publishes a universe received by a widget.
func (c *ClientMQTT) PublishDMX(widget string, b dmx.Buffer) {
	frame := DMXFrame{Widget: widget, Channels: make([]int, len(b))}
	for i, v := range b {
		frame.Channels[i] = int(v)
	}
	c.publish(c.topic(widget, topicDMXIn), frame, false)
}

// PublishParams publishes the reply to a params/get request.
func (c *ClientMQTT) PublishParams(widget string, ok bool, p usbpro.Parameters) {
	c.publish(c.topic(widget, topicParams), ParamsReply{Widget: widget, OK: ok, Params: p}, true)
}

func (c *ClientMQTT) publish(topic string, v interface{}, retained bool) {
	msg, err := json.Marshal(v)
	if err != nil {
		c.log.Errorf("public topic. msg: %v", err)
		return
	}
	token := c.client.Publish(topic, c.cfgClient.Qos, retained, msg)
	go func() {
		select {
		case <-c.ctx.Done():
			return
		case <-token.Done():
			if token.Error() != nil {
				c.log.Errorf("error publish topic %s. %v", topic, token.Error())
			}
		}
	}()
}

func (c *ClientMQTT) topic(widget, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", c.cfgClient.Prefix, widget, suffix)
}

// ParseCommand turns a message on <prefix>/<widget>/<suffix> into a Command.
func ParseCommand(prefix, topic string, payload []byte) (Command, error) {
	rest := strings.TrimPrefix(topic, prefix+"/")
	if rest == topic {
		return Command{}, fmt.Errorf("topic %s outside prefix %s", topic, prefix)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Command{}, fmt.Errorf("topic %s has no widget", topic)
	}
	cmd := Command{Widget: parts[0]}

	switch parts[1] {
	case topicDMXOut:
		cmd.Kind = CommandDMX
		if err := json.Unmarshal(payload, &cmd.Data); err != nil {
			return Command{}, err
		}
		for _, d := range cmd.Data {
			if int(d.Channel) >= dmx.UniverseSize {
				return Command{}, fmt.Errorf("channel %d out of range", d.Channel)
			}
		}
	case topicParamsGet:
		cmd.Kind = CommandGetParams
	case topicParamsSet:
		cmd.Kind = CommandSetParams
		if err := json.Unmarshal(payload, &cmd.Params); err != nil {
			return Command{}, err
		}
	default:
		return Command{}, fmt.Errorf("unknown topic %s", topic)
	}
	return cmd, nil
}
