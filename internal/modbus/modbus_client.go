package modbus

import (
	"fmt"
	"strings"

	"github.com/goburrow/modbus"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

// ModbusHandler is satisfied by both the RTU and TCP goburrow handlers.
type ModbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Transport is what the poller needs from a Modbus link.
type Transport interface {
	Connect() error
	Close() error
	ReadRegisters(fn register.Function, addr, qty uint16) ([]uint16, error)
}

type DeviceClient struct {
	handler ModbusHandler
	client  modbus.Client
	label   string // port or tcp address, for logs
}

func newDeviceClient(handler ModbusHandler, label string) *DeviceClient {
	return &DeviceClient{
		handler: handler,
		client:  modbus.NewClient(handler),
		label:   label,
	}
}

func NewRTUDeviceClient(s config.SerialConfig) *DeviceClient {
	handler := modbus.NewRTUClientHandler(s.Port)
	handler.BaudRate = s.Baud
	handler.DataBits = s.DataBits
	handler.Parity = s.Parity
	handler.StopBits = s.StopBits
	handler.Timeout = s.Timeout()
	handler.SlaveId = s.SlaveID
	if s.Debug {
		handler.Logger = logging.WrapSlog("port", s.Port)
	}
	return newDeviceClient(handler, s.Port)
}

func NewTCPDeviceClient(s config.SerialConfig) *DeviceClient {
	handler := modbus.NewTCPClientHandler(s.TCPAddr)
	handler.Timeout = s.Timeout()
	handler.SlaveId = s.SlaveID
	if s.Debug {
		handler.Logger = logging.WrapSlog("addr", s.TCPAddr)
	}
	return newDeviceClient(handler, s.TCPAddr)
}

// NewDeviceClient picks the handler from s.Type.
func NewDeviceClient(s config.SerialConfig) (*DeviceClient, error) {
	switch strings.ToLower(s.Type) {
	case "rtu":
		return NewRTUDeviceClient(s), nil
	case "tcp":
		return NewTCPDeviceClient(s), nil
	default:
		return nil, fmt.Errorf("unknown modbus transport type %q", s.Type)
	}
}

func (m *DeviceClient) Connect() error {
	return m.handler.Connect()
}

func (m *DeviceClient) Close() error {
	return m.handler.Close()
}

func (m *DeviceClient) String() string { return m.label }

// ReadRegisters issues FC3 or FC4 and returns the response as 16-bit words.
// A trailing odd byte is dropped; callers check the word count.
func (m *DeviceClient) ReadRegisters(fn register.Function, addr, qty uint16) ([]uint16, error) {
	var (
		data []byte
		err  error
	)
	switch fn {
	case register.HoldingRegister:
		// FC3
		data, err = m.client.ReadHoldingRegisters(addr, qty)
	case register.InputRegister:
		// FC4
		data, err = m.client.ReadInputRegisters(addr, qty)
	default:
		return nil, fmt.Errorf("unsupported function %v", fn)
	}
	if err != nil {
		return nil, err
	}
	return bytesToWords(data), nil
}

func bytesToWords(data []byte) []uint16 {
	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return words
}
