package modbus

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/tbrandon/mbserver"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback listener: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestDeviceClient_AgainstTCPSlave(t *testing.T) {
	addr := freeAddr(t)
	srv := mbserver.NewServer()
	psi := register.EncodeFloat32(50.24, register.HighWordFirst)
	srv.InputRegisters[33], srv.InputRegisters[34] = psi[0], psi[1]
	srv.HoldingRegisters[0] = 230
	if err := srv.ListenTCP(addr); err != nil {
		t.Skipf("listen %s: %v", addr, err)
	}
	defer srv.Close()

	client, err := NewDeviceClient(config.SerialConfig{Type: "tcp", TCPAddr: addr, TimeoutMs: 1000, SlaveID: 1})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := register.NewCatalog([]register.Definition{
		{Name: "measured_psi", Address: 33, Width: register.Float32, Function: register.InputRegister},
		{Name: "voltage", Address: 0, Width: register.Single, Function: register.HoldingRegister},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := NewPoller(client, register.HighWordFirst).PollAll(ctx, cat)
	if err != nil {
		t.Fatalf("PollAll: %v", err)
	}
	if !got[0].OK() || math.Abs(got[0].Value-50.24) > 1e-5 {
		t.Errorf("measured_psi = %+v", got[0])
	}
	if !got[1].OK() || got[1].Value != 230 {
		t.Errorf("voltage = %+v", got[1])
	}
}

func TestNewDeviceClient_UnknownType(t *testing.T) {
	if _, err := NewDeviceClient(config.SerialConfig{Type: "usb"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
