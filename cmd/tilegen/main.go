package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/geotwin/internal/tilestream"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

// publish sends evs keyed by feature so one feature's events stay ordered.
func publish(prod sarama.SyncProducer, topic string, evs []tilestream.Event) error {
	for _, ev := range evs {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		_, _, err = prod.SendMessage(&sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(ev.Key()),
			Value: sarama.ByteEncoder(b),
		})
		if err != nil {
			return fmt.Errorf("send %s: %w", ev.Key(), err)
		}
	}
	return nil
}

func main() {
	cfg := genConfig{}
	flag.StringVar(&cfg.Layer, "layer", "buildings", "target layer")
	flag.Float64Var(&cfg.Lon, "lon", getfloat("CAMERA_LON", 18.07), "centre longitude")
	flag.Float64Var(&cfg.Lat, "lat", getfloat("CAMERA_LAT", 59.33), "centre latitude")
	flag.IntVar(&cfg.Res, "res", 11, "footprint cell resolution")
	flag.IntVar(&cfg.Rings, "rings", 6, "rings around the centre cell")
	flag.IntVar(&cfg.TileRes, "tile-res", 8, "tile cell resolution")
	flag.Uint64Var(&cfg.Seed, "seed", 1, "attribute seed")
	rev := flag.Uint64("rev", uint64(time.Now().Unix()), "event revision")
	unloadAfter := flag.Duration("unload-after", 0, "unload everything after this long (0 keeps it loaded)")
	flag.Parse()

	brokers := tilestream.SplitCSV(getenv("KAFKA_BROKERS", "localhost:9092"))
	topic := getenv("TILE_TOPIC", "tile-events")

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Version = sarama.V2_1_0_0
	prod, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		fmt.Println("producer create:", err)
		os.Exit(1)
	}
	defer func() { _ = prod.Close() }()

	loads, err := buildEvents(cfg, tilestream.OpLoad, *rev, time.Now().UTC())
	if err != nil {
		fmt.Println("build events:", err)
		os.Exit(1)
	}
	if err := publish(prod, topic, loads); err != nil {
		fmt.Println("publish:", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %d features into %q (topic %s)\n", len(loads), cfg.Layer, topic)

	if *unloadAfter <= 0 {
		return
	}
	time.Sleep(*unloadAfter)
	unloads, err := buildEvents(cfg, tilestream.OpUnload, *rev+1, time.Now().UTC())
	if err != nil {
		fmt.Println("build events:", err)
		os.Exit(1)
	}
	if err := publish(prod, topic, unloads); err != nil {
		fmt.Println("publish:", err)
		os.Exit(1)
	}
	fmt.Printf("unloaded %d features\n", len(unloads))
}
