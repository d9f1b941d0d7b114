package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// UDP maps one logical channel onto the gateway's data/settings port pair.
// Port mapping and bind address are fixed at construction; every call opens
// and closes its own socket.
type UDP struct {
	cfg    Config
	ports  PortMap
	remote net.IP
	local  net.IP

	mu     sync.Mutex
	closed bool
}

var _ Transport = (*UDP)(nil)

// NewUDP resolves ports and the local bind address from the host interfaces.
func NewUDP(cfg Config) (*UDP, error) {
	ips, err := InterfaceIPs()
	if err != nil {
		log.Warn().Err(err).Msg("transport.NewUDP interface scan failed, binding loopback")
	}
	return NewUDPWithInterfaces(cfg, ips)
}

// NewUDPWithInterfaces is NewUDP with an explicit candidate address list.
func NewUDPWithInterfaces(cfg Config, candidates []net.IP) (*UDP, error) {
	cfg = cfg.WithDefaults()
	remote := net.ParseIP(cfg.RemoteIP)
	if remote == nil || remote.To4() == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRemote, cfg.RemoteIP)
	}
	ports, err := MapPorts(cfg.Channel, cfg.BasePort)
	if err != nil {
		return nil, err
	}
	local := ResolveLocalIP(remote, candidates)
	if remote.To4().IsLoopback() {
		local = remote.To4()
	}
	t := &UDP{
		cfg:    cfg,
		ports:  ports,
		remote: remote.To4(),
		local:  local,
	}
	log.Debug().
		Str("remote", t.remote.String()).
		Str("local", t.local.String()).
		Int("data_port", ports.DataPort).
		Int("settings_port", ports.SettingsPort).
		Msg("transport.NewUDP resolved channel")
	return t, nil
}

func (t *UDP) Ports() PortMap  { return t.ports }
func (t *UDP) LocalIP() net.IP { return t.local }

func (t *UDP) Label() string {
	return fmt.Sprintf("udp://%s ch=%d", net.JoinHostPort(t.remote.String(), strconv.Itoa(t.ports.DataPort)), t.ports.Channel)
}

// Open re-arms a closed transport. Sockets are per call, so there is nothing
// else to set up.
func (t *UDP) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

func (t *UDP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *UDP) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *UDP) dial(port int) (*net.UDPConn, error) {
	laddr := &net.UDPAddr{IP: t.local}
	raddr := &net.UDPAddr{IP: t.remote, Port: port}
	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s from %s: %w", raddr, t.local, err)
	}
	return conn, nil
}

func (t *UDP) SendAndMaybeWait(ctx context.Context, req []byte, expectReply bool, settle time.Duration) ([]byte, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ExchangeTimeout)
	defer cancel()

	conn, err := t.dial(t.ports.DataPort)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
	}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("transport: write: %w", err)
	}
	if !expectReply {
		return nil, nil
	}

	if err := sleepCtx(ctx, settle); err != nil {
		return nil, err
	}

	// unblock a pending read once ctx ends
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	deadline, _ := ctx.Deadline()
	c := collector{maxWait: t.cfg.MaxWait, idle: t.cfg.WaitPerByte, now: time.Now}
	resp, err := c.collect(ctx, &udpChunks{conn: conn, buf: make([]byte, t.cfg.ReadBufferSize)}, deadline)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrNoReply
		}
		return nil, err
	}
	return resp, nil
}

func (t *UDP) ReconfigureLine(ctx context.Context, setting string) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	if _, err := ParseLineSettings(setting); err != nil {
		return err
	}
	conn, err := t.dial(t.ports.SettingsPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(CommandReset)); err != nil {
		return fmt.Errorf("transport: write reset: %w", err)
	}
	if err := sleepCtx(ctx, t.cfg.ReconfigurePause); err != nil {
		return err
	}
	initCmd := InitCommand(setting)
	if _, err := conn.Write([]byte(initCmd)); err != nil {
		return fmt.Errorf("transport: write init: %w", err)
	}
	log.Info().
		Int("settings_port", t.ports.SettingsPort).
		Str("command", initCmd).
		Msg("transport.UDP.ReconfigureLine sent")
	return nil
}

// udpChunks reads datagrams as reply chunks.
type udpChunks struct {
	conn *net.UDPConn
	buf  []byte
}

func (u *udpChunks) ReadChunk(timeout time.Duration) ([]byte, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, err := u.conn.Read(u.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, errIdle
		}
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}
