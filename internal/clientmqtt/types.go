package clientmqtt

import "usbprobridge/internal/usbpro"

type MQTTConf struct {
	ClientID string // ClientID - уникальное имя клиента для брокеров.
	Schema   string // Schema - тип подключения.
	Host     string // Host - адрес MQTT сервера.
	Port     string // Port - порт MQTT сервера.
	User     string // User - логин для подключения к MQTT серверу.
	Password string // Password - пароль для подключения к MQTT серверу.
	Qos      byte   // Qos - качество обслуживания.
	Prefix   string // Prefix - корень топиков.
}

// CommandKind is what a received message asks a widget to do.
type CommandKind int

const (
	CommandDMX CommandKind = iota + 1
	CommandGetParams
	CommandSetParams
)

// Command is a parsed control message for one widget.
type Command struct {
	Widget string
	Kind   CommandKind
	Data   Payload   // Data - для CommandDMX.
	Params ParamsSet // Params - для CommandSetParams.
}

type DMXCommand struct {
	Channel uint16 `json:"channel"` // Channel is the channel a command can talk to (0-511).
	Value   uint8  `json:"value"`   // Value is the value a DMX channel can represent (0-255).
}

type Payload []DMXCommand

// ParamsSet is the body of a params/set message.
type ParamsSet struct {
	BreakTime uint8 `json:"break_time"`
	MABTime   uint8 `json:"mab_time"`
	Rate      uint8 `json:"rate"`
}

// DMXFrame is published for every universe received by a widget.
type DMXFrame struct {
	Widget   string `json:"widget"`
	Channels []int  `json:"channels"`
}

// ParamsReply is published in response to params/get.
type ParamsReply struct {
	Widget string            `json:"widget"`
	OK     bool              `json:"ok"`
	Params usbpro.Parameters `json:"params"`
}
