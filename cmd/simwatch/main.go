// cmd/simwatch follows a running simserver through Redis and logs every
// tick. It needs no access to the server itself.
//
// Usage:
//
//	go run ./cmd/simwatch --tickers=TCH,STB --recent=12
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"marketsim/config"
	"marketsim/internal/model"
	redisstore "marketsim/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	tickersStr := flag.String("tickers", "TCH,STB", "Comma-separated tickers to show at startup")
	recent := flag.Int64("recent", 12, "Stream points to print per ticker at startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[simwatch] config: %v", err)
	}
	if !cfg.RedisEnabled() {
		log.Fatal("[simwatch] REDIS_ADDR is empty")
	}

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[simwatch] redis: %v", err)
	}
	defer reader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, ticker := range strings.Split(*tickersStr, ",") {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" {
			continue
		}
		latest, err := reader.Latest(ctx, ticker)
		switch {
		case errors.Is(err, redisstore.ErrNotFound):
			log.Printf("[simwatch] %s: no state yet", ticker)
			continue
		case err != nil:
			log.Printf("[simwatch] %s: %v", ticker, err)
			continue
		}
		log.Printf("[simwatch] %s latest %.2f (momentum %+.4f)", ticker, latest.Price, latest.Momentum)

		points, err := reader.RecentPoints(ctx, ticker, *recent)
		if err != nil {
			log.Printf("[simwatch] %s points: %v", ticker, err)
			continue
		}
		for _, p := range points {
			log.Printf("[simwatch]   %s %s %.2f vol=%d", ticker, p.Timestamp.Format("2006-01-02 15:04"), p.Price, p.Volume)
		}
	}

	ticks := make(chan model.Update, 256)
	go func() {
		if err := reader.SubscribeTicks(ctx, ticks); err != nil {
			log.Printf("[simwatch] subscribe: %v", err)
		}
		cancel()
	}()

	log.Println("[simwatch] following live ticks, ctrl+c to stop")
	for {
		select {
		case <-ctx.Done():
			log.Println("[simwatch] stopped.")
			return
		case u := <-ticks:
			logUpdate(u)
		}
	}
}

func logUpdate(u model.Update) {
	if !u.Generated {
		log.Printf("[simwatch] #%d market closed, clock at %s", u.Seq, u.CurrentDate.Format("Mon 2006-01-02 15:04"))
		return
	}
	var b strings.Builder
	for _, iu := range u.Instruments {
		b.WriteString(" ")
		b.WriteString(iu.Ticker)
		b.WriteString("=")
		b.WriteString(formatPrice(iu.Price))
		if iu.Spike {
			b.WriteString("!")
		}
	}
	log.Printf("[simwatch] #%d %s%s", u.Seq, u.CurrentDate.Format("15:04"), b.String())
}

// formatPrice renders a price at cent precision without float artefacts.
func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(2)
}
