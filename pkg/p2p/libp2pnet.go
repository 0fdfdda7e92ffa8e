package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/syncbridge"
)

const protocolRequest = protocol.ID("/meshbook/rpc/1.0.0")

const requestTimeout = 10 * time.Second

// RequestHandler answers a request body with a reply body. The reply is sent
// even when err is non-nil.
type RequestHandler interface {
	HandleJSON(ctx context.Context, body []byte) ([]byte, error)
}

// InboundFunc receives every gossip message published by another peer.
type InboundFunc func(ctx context.Context, data []byte) error

type Net struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	log   *zap.SugaredLogger

	requests RequestHandler
}

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Requests   RequestHandler // optional; enables the request stream protocol
	Logger     *zap.SugaredLogger
}

func NewNet(ctx context.Context, cfg Config) (*Net, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Topic == "" {
		return nil, errors.New("p2p: topic required")
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen addr: %w", err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	n := &Net{h: h, ps: ps, log: cfg.Logger, requests: cfg.Requests}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if n.topic, err = ps.Join(cfg.Topic); err != nil {
		_ = h.Close()
		return nil, err
	}
	if n.sub, err = n.topic.Subscribe(); err != nil {
		_ = h.Close()
		return nil, err
	}

	if cfg.Requests != nil {
		h.SetStreamHandler(protocolRequest, n.handleRequestStream)
	}

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic, "addrs", h.Addrs())
	return n, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Net) Host() host.Host { return n.h }

func (n *Net) Peers() []peer.ID { return n.h.Network().Peers() }

// Broadcast publishes one envelope on the gossip topic.
func (n *Net) Broadcast(ctx context.Context, env syncbridge.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return n.topic.Publish(ctx, data)
}

// Listen delivers gossip messages to fn until ctx is done. Messages this host
// published itself are skipped: their effects are already in the local book.
func (n *Net) Listen(ctx context.Context, fn InboundFunc) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		if err := fn(ctx, msg.Data); err != nil {
			n.log.Debugw("gossip_message_rejected", "from", msg.ReceivedFrom.String(), "err", err)
		}
	}
}

// Request sends one request body to a peer over the request stream.
func (n *Net) Request(ctx context.Context, to peer.ID, body []byte) ([]byte, error) {
	s, err := n.h.NewStream(ctx, to, protocolRequest)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(dl)
	}

	if err := writeMessage(s, body); err != nil {
		_ = s.Reset()
		return nil, err
	}
	return readMessage(bufio.NewReader(s))
}

func (n *Net) handleRequestStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(requestTimeout))

	r := bufio.NewReader(s)
	body, err := readMessage(r)
	if err != nil {
		n.log.Debugw("request_stream_read_failed", "peer", s.Conn().RemotePeer().String(), "err", err)
		_ = s.Reset()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	reply, err := n.requests.HandleJSON(ctx, body)
	if err != nil {
		n.log.Debugw("request_rejected", "peer", s.Conn().RemotePeer().String(), "err", err)
	}
	if err := writeMessage(s, reply); err != nil {
		n.log.Debugw("request_stream_write_failed", "peer", s.Conn().RemotePeer().String(), "err", err)
		_ = s.Reset()
	}
}

func (n *Net) Close() error {
	n.sub.Cancel()
	_ = n.topic.Close()
	return n.h.Close()
}
