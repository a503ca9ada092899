package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/winmon/winmon-core/internal/infrastructure/config"
	"github.com/winmon/winmon-core/internal/infrastructure/logging"
)

// Adapter supervises the serial connection to the sensor gateway.
type Adapter struct {
	cfg     config.GatewayConfig
	poll    time.Duration
	opener  Opener
	handler handler
	logger  *logging.Logger
}

// NewAdapter creates an adapter for the configured port. opener may
// be nil, in which case real serial ports are used.
func NewAdapter(cfg config.GatewayConfig, poll time.Duration, devices DeviceSink, opener Opener, logger *logging.Logger) *Adapter {
	if opener == nil {
		opener = SerialOpener{}
	}
	log := logger.With("component", "gateway")
	return &Adapter{
		cfg:     cfg,
		poll:    poll,
		opener:  opener,
		handler: handler{devices: devices, logger: log},
		logger:  log,
	}
}

// Run opens the port and reads it until ctx is cancelled. Every open
// failure and every stream drop is retried after the polling
// interval; the adapter never gives up on the port.
func (a *Adapter) Run(ctx context.Context) {
	a.logAvailablePorts()

	for {
		port, err := a.opener.Open(a.cfg.Port, a.cfg.BaudRate)
		if err != nil {
			a.logger.Warn("serial open failed",
				"port", a.cfg.Port,
				"baud", a.cfg.BaudRate,
				"error", err,
			)
		} else {
			a.logger.Info("gateway connected", "port", a.cfg.Port, "baud", a.cfg.BaudRate)
			a.handler.devices.SetReady(true)
			a.readStream(ctx, port)
			a.handler.devices.SetReady(false)
			a.logger.Warn("gateway disconnected", "port", a.cfg.Port)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.poll):
		}
	}
}

// readStream frames the port's byte stream into lines until the
// stream fails or ctx is cancelled. The port is closed on every exit
// path; cancellation closes it early to unblock the pending read.
func (a *Adapter) readStream(ctx context.Context, port Port) {
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()
	defer port.Close()

	var frames lineBuffer
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			for _, line := range frames.push(buf[:n]) {
				if herr := a.handler.handleLine(line); herr != nil {
					a.logger.Warn("dropping gateway line", "error", herr)
				}
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				a.logger.Warn("serial read failed", "error", err)
			}
			return
		}
	}
}

// logAvailablePorts lists the serial ports the host exposes, as a
// diagnostic for misconfigured port names.
func (a *Adapter) logAvailablePorts() {
	ports, err := a.opener.List()
	if err != nil {
		a.logger.Warn("serial port enumeration failed", "error", err)
		return
	}
	a.logger.Info("serial ports available", "ports", ports)
}
