package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/winmon/winmon-core/internal/infrastructure/logging"
)

const (
	lineHeader    = "GW"
	tokenDelim    = ";"
	noticeTokens  = 4
	eventTokensV1 = 7
	eventTokensV2 = 8
)

// Gateway line discriminators.
const (
	discStartup = 1
	discError   = 2
	discEvent   = 3
)

// DeviceSink receives the state transitions decoded from gateway
// lines. Implemented by the device manager.
type DeviceSink interface {
	ApplySensorEvent(id, stateCode, rawBattery int) error
	MarkUnknownMessage(id int) error
	SetReady(ready bool)
}

// handler interprets framed gateway lines.
type handler struct {
	devices DeviceSink
	logger  *logging.Logger
}

// handleLine tokenizes one line and dispatches it. Invalid lines are
// reported as an error so the adapter can log and drop them without
// tearing the connection down.
func (h *handler) handleLine(line string) error {
	tokens := strings.Split(line, tokenDelim)
	if tokens[0] != lineHeader {
		return fmt.Errorf("%w: %q has bad header", ErrInvalidLine, line)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("%w: %q has no discriminator", ErrInvalidLine, line)
	}

	disc, err := strconv.Atoi(tokens[1])
	if err != nil {
		return fmt.Errorf("%w: %q has bad discriminator", ErrInvalidLine, line)
	}

	switch disc {
	case discStartup:
		if len(tokens) != noticeTokens {
			return fmt.Errorf("%w: %q startup notice has %d tokens", ErrInvalidLine, line, len(tokens))
		}
		h.logger.Info("gateway startup notice", "detail", strings.Join(tokens[2:], " "))
		return nil
	case discError:
		if len(tokens) != noticeTokens {
			return fmt.Errorf("%w: %q error notice has %d tokens", ErrInvalidLine, line, len(tokens))
		}
		h.logger.Error("gateway error notice", "detail", strings.Join(tokens[2:], " "))
		return nil
	case discEvent:
		return h.handleEvent(line, tokens)
	default:
		return fmt.Errorf("%w: %q has unknown discriminator %d", ErrInvalidLine, line, disc)
	}
}

// handleEvent decodes a window-sensor event. Older gateway firmware
// emits seven tokens, newer firmware eight; in both layouts the state
// code is the fifth token and the battery reading is the second to
// last.
func (h *handler) handleEvent(line string, tokens []string) error {
	if len(tokens) != eventTokensV1 && len(tokens) != eventTokensV2 {
		return fmt.Errorf("%w: %q event has %d tokens", ErrInvalidLine, line, len(tokens))
	}

	id, err := strconv.Atoi(tokens[2])
	if err != nil {
		return fmt.Errorf("%w: %q has non-numeric device id", ErrInvalidLine, line)
	}
	stateCode, err := strconv.Atoi(tokens[4])
	if err != nil {
		h.flagUnknown(id)
		return fmt.Errorf("%w: %q has non-numeric state code", ErrInvalidLine, line)
	}
	rawBattery, err := strconv.Atoi(tokens[len(tokens)-2])
	if err != nil {
		h.flagUnknown(id)
		return fmt.Errorf("%w: %q has non-numeric battery value", ErrInvalidLine, line)
	}

	if err := h.devices.ApplySensorEvent(id, stateCode, rawBattery); err != nil {
		h.logger.Warn("event for unconfigured device", "device", id, "error", err)
	}
	return nil
}

func (h *handler) flagUnknown(id int) {
	if err := h.devices.MarkUnknownMessage(id); err != nil {
		h.logger.Warn("unreadable event for unconfigured device", "device", id, "error", err)
	}
}
