package hoststate

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/winmon/winmon-core/internal/infrastructure/config"
	"github.com/winmon/winmon-core/internal/infrastructure/logging"
	"github.com/winmon/winmon-core/internal/protocol"
)

// serverStatePairs is the number of label/value pairs a SERVER_STATE
// frame carries.
const serverStatePairs = 6

// unavailable is reported for any reading that could not be obtained.
const unavailable = "n/a"

// CommandRunner executes the host sensor readout command.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DiskUsage returns the used-space percentage for a mount path.
type DiskUsage func(path string) (float64, error)

func gopsutilUsage(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Reader produces host state snapshots.
type Reader struct {
	cfg       config.HostConfig
	runner    CommandRunner
	diskUsage DiskUsage
	logger    *logging.Logger
}

// NewReader creates a reader. runner and diskUsage may be nil, in
// which case the readout command is executed for real and filesystem
// statistics are taken from the OS.
func NewReader(cfg config.HostConfig, runner CommandRunner, diskUsage DiskUsage, logger *logging.Logger) *Reader {
	if runner == nil {
		runner = execRunner{}
	}
	if diskUsage == nil {
		diskUsage = gopsutilUsage
	}
	return &Reader{
		cfg:       cfg,
		runner:    runner,
		diskUsage: diskUsage,
		logger:    logger.With("component", "hoststate"),
	}
}

// Message builds a fresh SERVER_STATE frame: one pair per configured
// sensor id, then one pair per monitored filesystem, padded with
// placeholder pairs up to the fixed frame size.
func (r *Reader) Message(ctx context.Context) protocol.Message {
	params := make([]string, 0, serverStatePairs*2)

	sensors := r.readSensors(ctx)
	for _, id := range r.cfg.SensorIDs {
		value, ok := sensors[id]
		if !ok {
			value = unavailable
		}
		params = append(params, id, value)
	}

	for i, path := range r.cfg.DiskPaths {
		value := unavailable
		if percent, err := r.diskUsage(path); err != nil {
			r.logger.Warn("disk usage read failed", "path", path, "error", err)
		} else {
			value = strconv.Itoa(int(percent)) + " %"
		}
		params = append(params, r.cfg.DiskLabels[i], value)
	}

	for len(params) < serverStatePairs*2 {
		params = append(params, "-", unavailable)
	}
	return protocol.New(protocol.TypeServerState, params[:serverStatePairs*2]...)
}

// readSensors runs the readout command and parses its table output.
// Each line is '|'-delimited: label, value, unit, and trailing fields
// that are ignored.
func (r *Reader) readSensors(ctx context.Context) map[string]string {
	fields := strings.Fields(r.cfg.SensorCommand)
	if len(fields) == 0 {
		return nil
	}

	out, err := r.runner.Run(ctx, fields[0], fields[1:]...)
	if err != nil {
		r.logger.Warn("sensor readout failed", "command", r.cfg.SensorCommand, "error", err)
		return nil
	}
	return parseSensorOutput(string(out))
}

func parseSensorOutput(out string) map[string]string {
	readings := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		cols := strings.Split(line, "|")
		if len(cols) < 3 {
			continue
		}
		label := strings.TrimSpace(cols[0])
		value := strings.TrimSpace(cols[1])
		unit := strings.TrimSpace(cols[2])
		if label == "" || value == "" || value == "na" {
			continue
		}
		readings[label] = formatReading(value, unit)
	}
	return readings
}

// formatReading joins a value with its unit, shortening the readout
// command's verbose temperature unit.
func formatReading(value, unit string) string {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		value = strconv.FormatFloat(f, 'f', -1, 64)
	}
	switch unit {
	case "degrees C":
		return value + " °C"
	case "":
		return value
	default:
		return fmt.Sprintf("%s %s", value, unit)
	}
}
