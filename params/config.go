package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Network struct {
	PeerID     string
	ListenAddr string
	Bootstrap  []string
	Topic      string // gossip topic carrying {action, data} envelopes
}

type Pipeline struct {
	// BatchWindow is how long operations accumulate before being sorted and applied.
	//
	// Recommended values:
	//   - Devnet (single node):  1000ms (matches the reference deployment)
	//   - LAN cluster:           200ms
	//   - WAN:                   1000ms or more; the window must cover most of the gossip delay
	//                            for cross-peer ordering to be meaningful
	BatchWindow time.Duration
	QueueSize   int
	// BroadcastDeletes publishes an order_removed envelope for every local deletion
	// that actually removed an order.
	BroadcastDeletes bool
}

type Node struct {
	APIAddr          string
	DataDir          string
	SnapshotInterval time.Duration // 0 disables periodic snapshots
	LogFile          string
	Verbose          bool
	EnableOrderGen   bool
}

type Export struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type Config struct {
	Network  Network
	Pipeline Pipeline
	Node     Node
	Export   Export
}

func Default() Config {
	return Config{
		Network: Network{
			PeerID: "peer1",
			Topic:  "order_updates",
		},
		Pipeline: Pipeline{
			BatchWindow:      1000 * time.Millisecond,
			QueueSize:        1024,
			BroadcastDeletes: true,
		},
		Node: Node{
			APIAddr: ":8080",
			DataDir: "data",
			LogFile: "data/node.log",
		},
		Export: Export{
			KafkaTopic: "meshbook.events",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Network.PeerID = getEnv("PEER_ID", cfg.Network.PeerID)
	cfg.Network.ListenAddr = getEnv("LISTEN", cfg.Network.ListenAddr)
	cfg.Network.Topic = getEnv("TOPIC", cfg.Network.Topic)
	if bs := os.Getenv("BOOTSTRAP"); bs != "" {
		cfg.Network.Bootstrap = splitList(bs)
	}

	if ms := getEnvInt("BATCH_WINDOW_MS"); ms > 0 {
		cfg.Pipeline.BatchWindow = time.Duration(ms) * time.Millisecond
	}
	if n := getEnvInt("QUEUE_SIZE"); n > 0 {
		cfg.Pipeline.QueueSize = n
	}
	if v := os.Getenv("BROADCAST_DELETES"); v != "" {
		cfg.Pipeline.BroadcastDeletes = v == "true"
	}

	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	if ms := getEnvInt("SNAPSHOT_INTERVAL_MS"); ms > 0 {
		cfg.Node.SnapshotInterval = time.Duration(ms) * time.Millisecond
	}
	cfg.Node.Verbose = os.Getenv("VERBOSE") == "true"
	cfg.Node.EnableOrderGen = os.Getenv("ENABLE_ORDERGEN") == "true"

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Export.KafkaBrokers = splitList(brokers)
	}
	cfg.Export.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Export.KafkaTopic)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns 0 when the variable is unset or not a number.
func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
