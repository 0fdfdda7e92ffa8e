package params

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PEER_ID", "peer7")
	t.Setenv("BOOTSTRAP", "/ip4/127.0.0.1/tcp/4001/p2p/QmA, ,/ip4/127.0.0.1/tcp/4002/p2p/QmB")
	t.Setenv("BATCH_WINDOW_MS", "250")
	t.Setenv("QUEUE_SIZE", "not-a-number")
	t.Setenv("BROADCAST_DELETES", "false")
	t.Setenv("SNAPSHOT_INTERVAL_MS", "5000")

	cfg := LoadFromEnv("does-not-exist.env")

	if cfg.Network.PeerID != "peer7" {
		t.Errorf("PeerID = %q, want peer7", cfg.Network.PeerID)
	}
	wantBoot := []string{"/ip4/127.0.0.1/tcp/4001/p2p/QmA", "/ip4/127.0.0.1/tcp/4002/p2p/QmB"}
	if !reflect.DeepEqual(cfg.Network.Bootstrap, wantBoot) {
		t.Errorf("Bootstrap = %v, want %v", cfg.Network.Bootstrap, wantBoot)
	}
	if cfg.Pipeline.BatchWindow != 250*time.Millisecond {
		t.Errorf("BatchWindow = %v, want 250ms", cfg.Pipeline.BatchWindow)
	}
	if cfg.Pipeline.QueueSize != Default().Pipeline.QueueSize {
		t.Errorf("QueueSize = %d, want default on parse error", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.BroadcastDeletes {
		t.Error("BroadcastDeletes should be false")
	}
	if cfg.Node.SnapshotInterval != 5*time.Second {
		t.Errorf("SnapshotInterval = %v, want 5s", cfg.Node.SnapshotInterval)
	}
}

func TestDefaultWindow(t *testing.T) {
	if got := Default().Pipeline.BatchWindow; got != time.Second {
		t.Errorf("default BatchWindow = %v, want 1s", got)
	}
}
