package ldfmock

import (
	"context"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"
)

const (
	// DefaultStartPort is used when no start port is configured. Allocators
	// that all start from it can hand out the same port to different
	// processes; give parallel runs distinct start ports.
	DefaultStartPort = 3000

	// MinPort and MaxPort bound the registered port range allocators probe.
	MinPort = 1024
	MaxPort = 49151

	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollTimeout  = 4 * time.Second

	loopbackHost = "127.0.0.1"
)

// ProbeStrategy decides how a candidate port is found free.
type ProbeStrategy int

const (
	// ProbeBind binds the port and releases it immediately.
	ProbeBind ProbeStrategy = iota
	// ProbeWait polls until nothing accepts connections on the port.
	ProbeWait
)

var errPortBusy = errors.New("port busy")

// ValidatePort fails with ErrInvalidPort outside [MinPort, MaxPort].
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return errors.Wrapf(ErrInvalidPort, "got %d", port)
	}
	return nil
}

// PortAllocator hands out free local TCP ports, walking upwards from a start
// port. Allocations on one allocator are serialized and never return the same
// port twice.
type PortAllocator struct {
	// Strategy selects the free-port check. Defaults to ProbeBind.
	Strategy ProbeStrategy

	// PollInterval and PollTimeout bound the ProbeWait poll on one port.
	PollInterval time.Duration
	PollTimeout  time.Duration

	mu      sync.Mutex
	start   int
	current int
}

// NewPortAllocator creates an allocator starting at startPort, or at
// DefaultStartPort when startPort is 0. An out-of-range start port is
// reported by Allocate.
func NewPortAllocator(startPort int) *PortAllocator {
	if startPort == 0 {
		startPort = DefaultStartPort
	}
	return &PortAllocator{
		Strategy:     ProbeBind,
		PollInterval: DefaultPollInterval,
		PollTimeout:  DefaultPollTimeout,
		start:        startPort,
		current:      startPort,
	}
}

// Allocate returns the next free port at or above the cursor and moves the
// cursor past it. The caller must bind the port before another process
// claims it.
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	if err := ValidatePort(a.start); err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.current; port <= MaxPort; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		free, err := a.probe(ctx, port)
		if err != nil {
			return 0, err
		}
		if free {
			a.current = port + 1
			return port, nil
		}
	}

	a.current = MaxPort + 1
	return 0, errors.Wrapf(ErrPortUnavailable, "searched %d-%d", a.start, MaxPort)
}

func (a *PortAllocator) probe(ctx context.Context, port int) (bool, error) {
	if a.Strategy == ProbeWait {
		return a.waitUntilFree(ctx, port)
	}
	return bindProbe(ctx, port)
}

func bindProbe(ctx context.Context, port int) (bool, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EACCES) {
			return false, nil
		}
		return false, markAs(errors.Wrapf(err, "probe port %d", port), ErrPortUnavailable)
	}
	if err := ln.Close(); err != nil {
		return false, errors.Wrapf(err, "release probe on port %d", port)
	}
	return true, nil
}

// waitUntilFree polls the port until nothing answers on it. Timing out is
// fatal for the allocation.
func (a *PortAllocator) waitUntilFree(ctx context.Context, port int) (bool, error) {
	addr := net.JoinHostPort(loopbackHost, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: a.PollInterval}

	operation := func() (struct{}, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return struct{}{}, nil
		}
		conn.Close()
		return struct{}{}, errPortBusy
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(a.PollInterval)),
		backoff.WithMaxElapsedTime(a.PollTimeout),
	)
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return false, errors.Wrapf(ErrPortUnavailable, "port %d still in use after %s", port, a.PollTimeout)
}
