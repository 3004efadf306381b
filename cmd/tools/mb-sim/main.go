package main

// cSpell:ignore mbserver Modbus
import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tbrandon/mbserver"

	"github.com/vfdlink/modbus2mqtt/internal/config"
	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/sim"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// mb-sim serves the register catalog as a Modbus TCP slave. Point the bridge
// at it with serial.type: tcp and serial.tcp_addr.
func main() {
	addr := getenv("MB_LISTEN_ADDR", ":1502")
	httpAddr := getenv("SIM_HTTP_ADDR", ":8081")

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		logging.Fatal("config error", "error", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		logging.Fatal("register catalog", "error", err)
	}

	srv := mbserver.NewServer()
	bank := sim.NewBank(srv.InputRegisters, srv.HoldingRegisters, catalog, cfg.Order())
	bank.Seed(sim.DefaultSeed)

	if err := srv.ListenTCP(addr); err != nil {
		logging.Fatal("ListenTCP", "addr", addr, "error", err)
	}
	defer srv.Close()
	logging.Info("Modbus TCP slave listening", "addr", addr, "registers", catalog.Len())

	api := &http.Server{Addr: httpAddr, Handler: sim.Routes(bank), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("rest api stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)
}
