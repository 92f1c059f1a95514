package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EndpointConfig names the local listen address and the remote peer. Inbound
// and outbound ports differ so sender and receiver can share one host.
type EndpointConfig struct {
	Listen         string
	Peer           string
	MaxMessageSize int
	QueueDepth     int
}

// UDPEndpoint is a Channel over a UDP socket. One goroutine reads datagrams into
// a bounded queue so that any number of callers may Receive concurrently.
type UDPEndpoint struct {
	conn    *net.UDPConn
	peer    *net.UDPAddr
	maxSize int
	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func ListenUDP(cfg EndpointConfig) (*UDPEndpoint, error) {
	if strings.TrimSpace(cfg.Listen) == "" {
		return nil, fmt.Errorf("channel: listen address required")
	}
	if strings.TrimSpace(cfg.Peer) == "" {
		return nil, fmt.Errorf("channel: peer address required")
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4096
	}

	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve listen %q: %w", cfg.Listen, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", cfg.Peer)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve peer %q: %w", cfg.Peer, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("channel: listen %q: %w", cfg.Listen, err)
	}

	e := &UDPEndpoint{
		conn:    conn,
		peer:    raddr,
		maxSize: cfg.MaxMessageSize,
		inbound: make(chan []byte, cfg.QueueDepth),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go e.readLoop()
	log.Debug().
		Str("listen", conn.LocalAddr().String()).
		Str("peer", raddr.String()).
		Int("max_message", cfg.MaxMessageSize).
		Msg("udp endpoint ready")
	return e, nil
}

func (e *UDPEndpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

func (e *UDPEndpoint) Send(msg []byte) error {
	if len(msg) > e.maxSize {
		return ErrMessageTooLarge
	}
	if _, err := e.conn.WriteToUDP(msg, e.peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("channel: send: %w", err)
	}
	return nil
}

func (e *UDPEndpoint) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return await(ctx, timeout, e.inbound, e.closed)
}

func (e *UDPEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.conn.Close()
		<-e.done
	})
	return err
}

func (e *UDPEndpoint) readLoop() {
	defer close(e.done)
	// one spare byte detects oversized datagrams instead of silently truncating
	buf := make([]byte, e.maxSize+1)
	for {
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("udp read failed")
			continue
		}
		if n > e.maxSize {
			log.Debug().Int("bytes", n).Msg("udp datagram over max size dropped")
			continue
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		select {
		case e.inbound <- msg:
		case <-e.closed:
			return
		default:
			log.Debug().Int("bytes", n).Msg("udp inbound queue full, datagram dropped")
		}
	}
}
