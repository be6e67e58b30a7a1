package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/pubcrawl-badges/internal/kafka"
)

var pubNames = []string{
	"red-lion", "crown", "royal-oak", "white-hart", "swan", "plough", "bell", "kings-head",
	"queens-head", "ship", "anchor", "fox", "railway", "rose-and-crown", "black-horse", "star",
}

func userName(idx int) string {
	return fmt.Sprintf("drinker-%04d", idx)
}

// hourWeights skews check-ins toward evenings so night owls show up
var hourWeights = []int{
	1, 1, 0, 0, 0, 0, 0, 1, 1, 1, 2, 3,
	5, 5, 4, 4, 5, 7, 9, 10, 10, 9, 7, 3,
}

func randomHour() int {
	total := 0
	for _, w := range hourWeights {
		total += w
	}
	n := rand.Intn(total)
	for h, w := range hourWeights {
		if n < w {
			return h
		}
		n -= w
	}
	return 20
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "pub-checkins", "Kafka topic")
	totalUsers := flag.Int("users", 200, "Number of distinct users")
	totalPubs := flag.Int("pubs", 8, "Number of distinct pubs (max 16)")
	checkInsPerSecond := flag.Int("rate", 20, "Check-ins per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	days := flag.Int("days", 14, "Spread check-in timestamps over this many past days")
	flag.Parse()

	if *totalPubs <= 0 || *totalPubs > len(pubNames) {
		*totalPubs = len(pubNames)
	}
	if *totalUsers <= 0 || *checkInsPerSecond <= 0 || *days <= 0 {
		log.Fatal("users, rate and days must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🍺 Pub Check-in Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Users:            %d\n", *totalUsers)
	fmt.Printf("  Pubs:             %d\n", *totalPubs)
	fmt.Printf("  Check-ins/sec:    %d\n", *checkInsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Keyed by user so one user's check-ins stay ordered on a partition
	sendCheckIn := func(msg kafka.CheckInMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.UserID),
			Value: sarama.ByteEncoder(data),
		}
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(time.Second / time.Duration(*checkInsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var sentCount int64
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			day := today.AddDate(0, 0, -rand.Intn(*days))
			ts := day.Add(time.Duration(randomHour())*time.Hour + time.Duration(rand.Intn(3600))*time.Second)

			sendCheckIn(kafka.CheckInMessage{
				UserID:    userName(rand.Intn(*totalUsers)),
				PubID:     pubNames[rand.Intn(*totalPubs)],
				Timestamp: ts,
			})
			atomic.AddInt64(&sentCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Check-ins: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
