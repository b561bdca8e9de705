// Job - обработка покупок
// Опрос Kafka -> начисление баллов на карту
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	db "github.com/glkeru/loyalty/wallet/internal/db"
	kafka "github.com/glkeru/loyalty/wallet/internal/external/kafka"
	rabbit "github.com/glkeru/loyalty/wallet/internal/external/rabbitmq"
	interf "github.com/glkeru/loyalty/wallet/internal/interfaces"
	services "github.com/glkeru/loyalty/wallet/internal/services"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// kafka
	reader, err := kafka.GetNewReader("purchases")
	if err != nil {
		panic(err)
	}
	defer reader.CloseReader()

	// storage
	kv, err := db.NewStoreFromEnv(logger)
	if err != nil {
		panic(err)
	}

	// push
	var push interf.PushTransport
	publisher, err := rabbit.NewRabbitPublisher()
	if err != nil {
		logger.Error(err.Error())
		push = nil
	} else {
		push = publisher
		defer publisher.Close()
	}

	// services
	devices := services.NewDeviceService(logger, kv)
	serv := services.NewLedgerService(logger, kv, devices, push)

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var semcount int
	semenv := os.Getenv("WALLET_ORDERS_COUNT")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}
	if semcount == 0 {
		semcount = 1
	}

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, semcount)

loop:
	for {
		select {
		case <-interrupt:
			cancel()
			break loop
		case <-ctx.Done():
			break loop
		default:

			purchase, err := reader.GetNewMessage(ctx)
			if err != nil {
				logger.Error(err.Error())
				break loop
			}

			semaphore <- struct{}{}
			wg.Add(1)
			go func(purchase string) {
				defer wg.Done()
				defer func() { <-semaphore }()
				err = serv.PurchaseProcess(ctx, purchase)
				if err != nil {
					logger.Error(err.Error())
					return
				}
			}(purchase)
		}
	}
	wg.Wait()
}
