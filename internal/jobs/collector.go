package jobs

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

	"github.com/rowan/commitdeck/internal/logger"
)

// ErrCollectorNotConfigured is returned when no collection command is set.
var ErrCollectorNotConfigured = errors.New("full collection command is not configured")

// CollectionResult is the outcome of a full collection run.
type CollectionResult struct {
	RecordsWritten int    `json:"recordsWritten"`
	RawOutput      string `json:"rawOutput"`
}

// Collector runs a full-history collection pass, reporting coarse progress
// along the way. The default implementation shells out to an external
// program; swapping in an in-process implementation does not change the
// orchestrator's contract.
type Collector interface {
	Run(ctx context.Context, progress func(done, total int)) (*CollectionResult, error)
}

// ExecCollector spawns an external collection program and scrapes its
// streamed output for "N/M" progress fragments. The text matching is a
// placeholder contract with the external tool, not a pattern to rely on for
// anything beyond progress display.
type ExecCollector struct {
	command string
	args    []string
	log     *logger.Logger
}

// NewExecCollector creates a collector that runs the given command.
// Parameters:
//   - command: program to execute; empty disables the collector.
//   - args: program arguments.
//   - log: logger; nil uses the default logger.
// Returns:
//   - *ExecCollector: initialized collector.
func NewExecCollector(command string, args []string, log *logger.Logger) *ExecCollector {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ExecCollector{command: command, args: args, log: log}
}

var progressPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// parseProgress extracts an "N/M" fragment from one output line.
// Returns ok=false when the line carries no progress information or the
// total is zero.
func parseProgress(line string) (done, total int, ok bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	done, err1 := strconv.Atoi(m[1])
	total, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || total <= 0 {
		return 0, 0, false
	}
	return done, total, true
}

// Run executes the external program to completion.
// Parameters:
//   - ctx: context; cancellation kills the child process.
//   - progress: called for each parsed progress fragment; may be nil.
// Returns:
//   - *CollectionResult: records written (last parsed count) and raw output.
//   - error: non-nil on start failure or non-zero exit, with captured
//     stderr content attached.
func (c *ExecCollector) Run(ctx context.Context, progress func(done, total int)) (*CollectionResult, error) {
	if c.command == "" {
		return nil, ErrCollectorNotConfigured
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open collector stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start collector: %w", err)
	}
	c.log.WithField("command", c.command).Info("Full collection run started")

	var raw strings.Builder
	lastDone := 0
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		raw.WriteString(line)
		raw.WriteByte('\n')

		if done, total, ok := parseProgress(line); ok {
			lastDone = done
			if progress != nil {
				progress(done, total)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		errOut := strings.TrimSpace(stderr.String())
		if errOut != "" {
			return nil, fmt.Errorf("collector failed: %w: %s", err, errOut)
		}
		return nil, fmt.Errorf("collector failed: %w", err)
	}

	c.log.WithField(logger.FieldCount, lastDone).Info("Full collection run completed")
	return &CollectionResult{
		RecordsWritten: lastDone,
		RawOutput:      raw.String(),
	}, nil
}
