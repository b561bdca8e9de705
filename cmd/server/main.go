// HTTP сервис пассов: регистрация, баланс, протокол обновления пассов
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/glkeru/loyalty/wallet/internal/api"
	db "github.com/glkeru/loyalty/wallet/internal/db"
	rabbit "github.com/glkeru/loyalty/wallet/internal/external/rabbitmq"
	interf "github.com/glkeru/loyalty/wallet/internal/interfaces"
	services "github.com/glkeru/loyalty/wallet/internal/services"
	otel "github.com/glkeru/loyalty/wallet/observability/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	passkit "github.com/glkeru/loyalty/wallet/internal/external/passkit"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("WALLET_PORT")
	if port == "" {
		panic("env WALLET_PORT is not set")
	}

	// tracing
	shutdownTracer := otel.InitTracer(context.Background())
	defer shutdownTracer()

	// storage
	kv, err := db.NewStoreFromEnv(logger)
	if err != nil {
		panic(err)
	}

	// push: без очереди сервис работает, устройства обновляются поллингом
	var push interf.PushTransport
	publisher, err := rabbit.NewRabbitPublisher()
	if err != nil {
		logger.Error(err.Error())
		push = nil
	} else {
		push = publisher
		defer publisher.Close()
	}

	// renderer
	renderer, err := passkit.NewPasskitClient()
	if err != nil {
		panic(err)
	}

	// services
	devices := services.NewDeviceService(logger, kv)
	ledger := services.NewLedgerService(logger, kv, devices, push)

	// api handlers
	r := api.NewHandler(ledger, devices, renderer, logger)
	handler := api.MiddlewareLog()(otelhttp.NewHandler(r, "wallet"))
	srv := &http.Server{
		Handler:      handler,
		Addr:         ":" + port,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go srv.ListenAndServe()

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
