// txtail prints recent transaction records from the redis sink, newest
// first. Handy when debugging a service without a search backend around.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/opscribe/opscribe/pkg/sink"
)

func main() {
	addr := flag.String("addr", "localhost:6379", "redis address")
	password := flag.String("password", "", "redis password")
	db := flag.Int("db", 0, "redis database")
	key := flag.String("key", "opscribe:transactions", "transaction list key")
	limit := flag.Int("limit", 20, "number of records to print")
	follow := flag.Bool("follow", false, "poll for new records every 2s")
	flag.Parse()

	s, err := sink.NewRedis(sink.RedisConfig{
		Addr:     *addr,
		Password: *password,
		DB:       *db,
		ListKey:  *key,
	})
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.HealthCheck(ctx); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}

	seen := map[string]bool{}
	for {
		records, err := s.Recent(ctx, *limit)
		if err != nil {
			log.Fatalf("read transactions: %v", err)
		}
		// Print oldest first so the terminal reads like a tail.
		for i := len(records) - 1; i >= 0; i-- {
			rec := records[i]
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			fmt.Fprintf(os.Stdout, "%s  %-7s %-4s %-30s %4d  %5dms  %s\n",
				rec.CreatedAt.Format(time.RFC3339),
				rec.Status,
				rec.Method,
				rec.Name,
				rec.StatusCode,
				rec.DurationMs,
				rec.TransactionID,
			)
		}
		if !*follow {
			return
		}
		time.Sleep(2 * time.Second)
	}
}
