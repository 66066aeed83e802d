package hal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cloupeer.io/nanoflash/internal/flasher/core"
	"cloupeer.io/nanoflash/pkg/log"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// EsptoolConfig selects the esptool binary and the serial link.
type EsptoolConfig struct {
	Path string
	Port string
	Baud int
	Chip string

	// Retries is the number of extra attempts after a failed invocation.
	Retries       uint64
	RetryInterval time.Duration
}

// Esptool drives a device through the esptool command line.
type Esptool struct {
	cfg    EsptoolConfig
	runner Runner
}

// EsptoolOption configures an Esptool.
type EsptoolOption func(*Esptool)

// WithRunner replaces the process runner.
func WithRunner(r Runner) EsptoolOption {
	return func(e *Esptool) { e.runner = r }
}

func NewEsptool(cfg EsptoolConfig, opts ...EsptoolOption) *Esptool {
	if cfg.Path == "" {
		cfg.Path = "esptool.py"
	}
	if cfg.Chip == "" {
		cfg.Chip = "esp32"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 921600
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}

	e := &Esptool{cfg: cfg, runner: execRunner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Esptool) DeviceInfo(ctx context.Context) (*core.Device, error) {
	out, err := e.run(ctx, "flash_id", core.DeviceUnavailable, "flash_id")
	if err != nil {
		return nil, err
	}
	dev, err := ParseFlashID(out)
	if err != nil {
		return nil, core.Wrap(core.DeviceUnavailable, "flash_id", err)
	}
	return dev, nil
}

func (e *Esptool) ReadFlash(ctx context.Context, path string, size int64) error {
	_, err := e.run(ctx, "read_flash", core.ReadFailed, "read_flash", "0", strconv.FormatInt(size, 10), path)
	return err
}

func (e *Esptool) EraseAll(ctx context.Context) error {
	_, err := e.run(ctx, "erase_flash", core.EraseFailed, "erase_flash")
	return err
}

func (e *Esptool) EraseRange(ctx context.Context, r core.EraseRange) error {
	_, err := e.run(ctx, "erase_region", core.EraseFailed, "erase_region", hex(r.Address), hex(r.Length))
	return err
}

func (e *Esptool) WritePlan(ctx context.Context, plan *core.PartitionPlan) error {
	args := []string{"write_flash", "-z"}
	for _, p := range plan.Partitions() {
		args = append(args, hex(p.Address), p.Path)
	}
	_, err := e.run(ctx, "write_flash", core.WriteFailed, args...)
	return err
}

func (e *Esptool) args(cmd ...string) []string {
	args := []string{"--chip", e.cfg.Chip}
	if e.cfg.Port != "" {
		args = append(args, "--port", e.cfg.Port)
	}
	args = append(args, "--baud", strconv.Itoa(e.cfg.Baud))
	return append(args, cmd...)
}

// run invokes esptool, retrying failures with exponential backoff. A missing
// executable is not retried.
func (e *Esptool) run(ctx context.Context, op string, outcome core.Outcome, cmd ...string) ([]byte, error) {
	logger := log.FromContext(ctx).WithValues("op", op)
	args := e.args(cmd...)

	var out []byte
	attempt := func() error {
		var err error
		out, err = e.runner.Run(ctx, e.cfg.Path, args...)
		if err == nil {
			return nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return backoff.Permanent(core.Wrap(core.DeviceUnavailable, op, err))
		}
		if msg := lastLine(out); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.cfg.Retries), ctx)

	logger.Debug("Running esptool", "args", args)
	err := backoff.RetryNotify(attempt, policy, func(err error, next time.Duration) {
		logger.Warn("esptool failed, retrying", "error", err, "backoff", next)
	})
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return out, err
		}
		return out, core.Wrap(outcome, op, err)
	}
	return out, nil
}

var (
	chipIsPattern     = regexp.MustCompile(`^Chip is (.+)$`)
	detectingPattern  = regexp.MustCompile(`^Detecting chip type\.*\s*(\S+)$`)
	featuresPattern   = regexp.MustCompile(`^Features:\s*(.*)$`)
	macPattern        = regexp.MustCompile(`^MAC:\s*([0-9A-Fa-f:]{17})$`)
	flashSizePattern  = regexp.MustCompile(`^Detected flash size:\s*(\d+)\s*([KM])B$`)
	chipFamilyPattern = regexp.MustCompile(`^(ESP32(?:-[SCH]\d+)?)`)
)

// ParseFlashID extracts a device descriptor from esptool flash_id output.
func ParseFlashID(out []byte) (*core.Device, error) {
	dev := &core.Device{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := detectingPattern.FindStringSubmatch(line); m != nil && strings.HasPrefix(m[1], "ESP") {
			dev.ChipType = strings.ReplaceAll(strings.ToUpper(m[1]), "-", "")
			continue
		}
		if m := chipIsPattern.FindStringSubmatch(line); m != nil {
			dev.ChipName = m[1]
			continue
		}
		if m := featuresPattern.FindStringSubmatch(line); m != nil {
			for _, f := range strings.Split(m[1], ",") {
				if f = strings.TrimSpace(f); f != "" {
					dev.Features = append(dev.Features, f)
				}
			}
			continue
		}
		if m := macPattern.FindStringSubmatch(line); m != nil {
			dev.MACAddress = strings.ToLower(m[1])
			continue
		}
		if m := flashSizePattern.FindStringSubmatch(line); m != nil {
			n, _ := strconv.ParseInt(m[1], 10, 64)
			unit := int64(1 << 20)
			if m[2] == "K" {
				unit = 1 << 10
			}
			dev.FlashSize = n * unit
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if dev.ChipType == "" {
		if m := chipFamilyPattern.FindStringSubmatch(strings.ToUpper(dev.ChipName)); m != nil {
			dev.ChipType = strings.ReplaceAll(m[1], "-", "")
		}
	}
	if dev.ChipType == "" || dev.MACAddress == "" {
		return nil, errors.New("esptool output has no chip type or MAC address")
	}
	return dev, nil
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%X", v)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
