// Job - доставка wake-up уведомлений
// Очередь pushes -> push-шлюз
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	pushgw "github.com/glkeru/loyalty/wallet/internal/external/pushgw"
	rabbit "github.com/glkeru/loyalty/wallet/internal/external/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer()
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer reader.Close()

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var semcount int
	semenv := os.Getenv("PUSH_WORKERS")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}

	// os signals
	go func() {
		<-interrupt
		cancel()
	}()

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(semcount)
	for i := 0; i < semcount; i++ {
		go worker(ctx, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitPush) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := <-reader.Msg
			if !ok {
				return
			}
			push := &rabbit.PushMessage{}
			err := json.Unmarshal(msg.Body, push)
			if err != nil {
				logger.Error(err.Error())
				continue
			}
			// best effort: ошибка доставки логируется и сообщение пропускается
			err = pushgw.Deliver(ctx, push.PushToken)
			if err != nil {
				logger.Error(err.Error())
				continue
			}
		}
	}
}
