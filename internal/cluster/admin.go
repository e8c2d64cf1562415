package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"weatherflow/internal/config"
	"weatherflow/internal/logging"
	"weatherflow/internal/procexec"
	"weatherflow/internal/services"
)

// WriteProtectedMarker appears in the admin report while the storage layer
// refuses writes.
const WriteProtectedMarker = "Safe mode is ON"

// Admin issues administrative commands against the coordinator container.
type Admin struct {
	runner      procexec.Runner
	docker      string
	hdfs        string
	coordinator string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewAdmin builds an Admin from configuration.
func NewAdmin(cfg *config.Config, runner procexec.Runner, logger *slog.Logger) *Admin {
	return &Admin{
		runner:      runner,
		docker:      cfg.Cluster.DockerBinary,
		hdfs:        cfg.Cluster.HDFSBinary,
		coordinator: cfg.Cluster.Coordinator,
		timeout:     cfg.AdminTimeout(),
		logger:      logging.NewComponentLogger(logger, "cluster-admin"),
	}
}

// Coordinator returns the coordinator container name.
func (a *Admin) Coordinator() string { return a.coordinator }

// Report returns the raw `dfsadmin -report` output.
func (a *Admin) Report(ctx context.Context) (string, error) {
	out, err := a.storage(ctx, "report", "dfsadmin", "-report")
	return string(out), err
}

// IsWriteProtected reports whether a report shows the storage layer in safe mode.
func IsWriteProtected(report string) bool {
	return strings.Contains(report, WriteProtectedMarker)
}

// LeaveSafeMode asks the coordinator to leave its write-protected state.
func (a *Admin) LeaveSafeMode(ctx context.Context) error {
	_, err := a.storage(ctx, "leave-safemode", "dfsadmin", "-safemode", "leave")
	return err
}

// List returns the listing of a remote path.
func (a *Admin) List(ctx context.Context, remote string) (string, error) {
	out, err := a.storage(ctx, "list", "dfs", "-ls", remote)
	return string(out), err
}

// Exists reports whether a remote path exists. A clean "does not exist"
// answer is not an error.
func (a *Admin) Exists(ctx context.Context, remote string) (bool, error) {
	_, err := a.storage(ctx, "exists", "dfs", "-test", "-e", remote)
	if err == nil {
		return true, nil
	}
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) && exitErr.Result.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// Mkdir creates a remote directory and its parents.
func (a *Admin) Mkdir(ctx context.Context, remote string) error {
	_, err := a.storage(ctx, "mkdir", "dfs", "-mkdir", "-p", remote)
	return err
}

// Remove deletes a remote path recursively. Missing paths are not an error.
func (a *Admin) Remove(ctx context.Context, remote string) error {
	_, err := a.storage(ctx, "remove", "dfs", "-rm", "-r", "-f", remote)
	return err
}

// Put copies a file that already lives inside the coordinator container into
// remote storage, overwriting the destination.
func (a *Admin) Put(ctx context.Context, containerPath, remote string) error {
	_, err := a.storage(ctx, "put", "dfs", "-put", "-f", containerPath, remote)
	return err
}

// Cat returns the content of a remote file.
func (a *Admin) Cat(ctx context.Context, remote string) ([]byte, error) {
	return a.storage(ctx, "cat", "dfs", "-cat", remote)
}

// Chmod applies permissions recursively to a remote path.
func (a *Admin) Chmod(ctx context.Context, mode, remote string) error {
	_, err := a.storage(ctx, "chmod", "dfs", "-chmod", "-R", mode, remote)
	return err
}

// NodeRunning reports whether the named container is in the running state.
func (a *Admin) NodeRunning(ctx context.Context, container string) (bool, error) {
	res, err := a.run(ctx, "inspect", a.timeout, "inspect", "-f", "{{.State.Running}}", container)
	if err != nil {
		return false, err
	}
	running, parseErr := strconv.ParseBool(strings.TrimSpace(string(res.Stdout)))
	if parseErr != nil {
		return false, services.Wrap(services.ErrExternalTool, "cluster", "inspect", "unexpected inspect output", parseErr)
	}
	return running, nil
}

// CoordinatorRunning is NodeRunning for the coordinator container.
func (a *Admin) CoordinatorRunning(ctx context.Context) (bool, error) {
	return a.NodeRunning(ctx, a.coordinator)
}

// CopyIn copies a local file into the coordinator container.
func (a *Admin) CopyIn(ctx context.Context, local, containerPath string) error {
	_, err := a.run(ctx, "copy-in", a.timeout, "cp", local, a.coordinator+":"+containerPath)
	return err
}

// MkdirContainer creates a directory inside the coordinator container.
func (a *Admin) MkdirContainer(ctx context.Context, dir string) error {
	_, err := a.Exec(ctx, a.timeout, "mkdir", "-p", dir)
	return err
}

// ContainerFileExists reports whether a regular file exists inside the coordinator container.
func (a *Admin) ContainerFileExists(ctx context.Context, containerPath string) (bool, error) {
	_, err := a.Exec(ctx, a.timeout, "test", "-f", containerPath)
	if err == nil {
		return true, nil
	}
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) && exitErr.Result.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// RemoveContainerFile deletes a file inside the coordinator container.
func (a *Admin) RemoveContainerFile(ctx context.Context, containerPath string) error {
	_, err := a.Exec(ctx, a.timeout, "rm", "-f", containerPath)
	return err
}

// CoordinatorLogs returns the last lines of the coordinator's container log.
func (a *Admin) CoordinatorLogs(ctx context.Context, lines int) (string, error) {
	res, err := a.run(ctx, "logs", a.timeout, "logs", "--tail", strconv.Itoa(lines), a.coordinator)
	return combined(res), err
}

// TailContainerFile returns the last lines of a file inside the coordinator container.
func (a *Admin) TailContainerFile(ctx context.Context, containerPath string, lines int) (string, error) {
	res, err := a.Exec(ctx, a.timeout, "tail", "-n", strconv.Itoa(lines), containerPath)
	return string(res.Stdout), err
}

// KillPattern terminates processes inside the coordinator whose command line matches pattern.
func (a *Admin) KillPattern(ctx context.Context, pattern string) error {
	_, err := a.Exec(ctx, a.timeout, "pkill", "-f", pattern)
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) && exitErr.Result.ExitCode == 1 {
		// pkill exits 1 when nothing matched
		return nil
	}
	return err
}

// Exec runs an arbitrary command inside the coordinator container.
func (a *Admin) Exec(ctx context.Context, timeout time.Duration, args ...string) (procexec.Result, error) {
	full := append([]string{"exec", a.coordinator}, args...)
	return a.run(ctx, "exec", timeout, full...)
}

func (a *Admin) storage(ctx context.Context, op string, args ...string) ([]byte, error) {
	full := append([]string{"exec", a.coordinator, a.hdfs}, args...)
	res, err := a.run(ctx, op, a.timeout, full...)
	return res.Stdout, err
}

func (a *Admin) run(ctx context.Context, op string, timeout time.Duration, args ...string) (procexec.Result, error) {
	cmd := procexec.Command{Name: a.docker, Args: args, Timeout: timeout}
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		logging.WithContext(ctx, a.logger).Debug("admin command failed",
			logging.String("operation", op),
			logging.String("command", cmd.String()),
			logging.Error(err),
		)
		return res, fmt.Errorf("cluster %s: %w", op, err)
	}
	return res, nil
}

func combined(res procexec.Result) string {
	out := strings.TrimRight(string(res.Stdout), "\n")
	if errText := strings.TrimRight(string(res.Stderr), "\n"); errText != "" {
		if out != "" {
			out += "\n"
		}
		out += errText
	}
	return out
}

// Entry is one line of a storage listing.
type Entry struct {
	Path  string
	Size  int64
	IsDir bool
}

// ParseListing extracts entries from `dfs -ls` output, skipping the
// "Found N items" banner and anything that is not a listing row.
func ParseListing(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:  fields[len(fields)-1],
			Size:  size,
			IsDir: strings.HasPrefix(fields[0], "d"),
		})
	}
	return entries
}
