package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/serial"
	"github.com/womat/mbserver"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/sim"
)

// rtu-sim serves the bridge's register catalog as a Modbus RTU slave on a
// serial port (typically one end of a socat pty pair) and exposes the
// values over HTTP for manual tweaking.
func main() {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		logging.Fatal("config error", "error", err)
	}
	port := cfg.Serial.Port
	if p := os.Getenv("SIM_SERIAL_PORT"); p != "" {
		port = p
	}
	httpAddr := os.Getenv("SIM_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		logging.Fatal("register catalog", "error", err)
	}

	s := mbserver.NewServer()
	unit := cfg.Serial.SlaveID
	if unit != 1 {
		if err := s.NewDevice(unit); err != nil {
			logging.Fatal("NewDevice", "unit", unit, "error", err)
		}
	}
	dev := s.Devices[unit]
	bank := sim.NewBank(dev.InputRegisters, dev.HoldingRegisters, catalog, cfg.Order())
	bank.Seed(sim.DefaultSeed)

	sp, err := serial.Open(&serial.Config{
		Address:  port,
		BaudRate: cfg.Serial.Baud,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		logging.Fatal("serial open", "port", port, "error", err)
	}
	defer sp.Close()

	if err := s.ListenRTU(sp); err != nil {
		logging.Fatal("listenRTU", "port", port, "error", err)
	}
	logging.Info("RTU simulator ready", "port", port, "unit", unit, "registers", catalog.Len())

	srv := &http.Server{Addr: httpAddr, Handler: sim.Routes(bank), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logging.Info("RTU simulator REST API listening", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("rest api stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logging.Info("bye")
}
