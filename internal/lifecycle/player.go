package lifecycle

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"stagequeue/internal/config"
)

// Opener launches the performance track for a request that starts playing.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// NewOpener returns a command-backed opener when player.open_command is set,
// otherwise a no-op.
func NewOpener(cfg *config.Config) Opener {
	if cfg == nil {
		return noopOpener{}
	}
	fields := strings.Fields(cfg.Player.OpenCommand)
	if len(fields) == 0 {
		return noopOpener{}
	}
	return commandOpener{name: fields[0], args: fields[1:]}
}

type commandOpener struct {
	name string
	args []string
}

func (c commandOpener) Open(ctx context.Context, url string) error {
	args := append(append([]string{}, c.args...), url)
	cmd := exec.CommandContext(ctx, c.name, args...) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", c.name, url, err, strings.TrimSpace(string(out)))
	}
	return nil
}

type noopOpener struct{}

func (noopOpener) Open(context.Context, string) error { return nil }

// PlayerCheck reports whether the configured open command can run.
type PlayerCheck struct {
	Command    string
	Configured bool
	Available  bool
	Detail     string
}

// CheckPlayer looks up player.open_command on PATH.
func CheckPlayer(cfg *config.Config) PlayerCheck {
	var fields []string
	if cfg != nil {
		fields = strings.Fields(cfg.Player.OpenCommand)
	}
	if len(fields) == 0 {
		return PlayerCheck{Detail: "command not configured"}
	}
	check := PlayerCheck{Command: fields[0], Configured: true}
	if _, err := exec.LookPath(check.Command); err != nil {
		check.Detail = fmt.Sprintf("binary %q not found", check.Command)
		return check
	}
	check.Available = true
	return check
}
