package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"weatherflow/internal/config"
	"weatherflow/internal/fileutil"
	"weatherflow/internal/logging"
	"weatherflow/internal/retry"
	"weatherflow/internal/services"
)

// ErrArtifactMissing reports a remote artifact whose existence check never succeeded.
var ErrArtifactMissing = fmt.Errorf("artifact missing: %w", services.ErrNotFound)

// Admin is the subset of cluster administration the stager needs.
type Admin interface {
	Mkdir(ctx context.Context, remote string) error
	Chmod(ctx context.Context, mode, remote string) error
	Remove(ctx context.Context, remote string) error
	Put(ctx context.Context, containerPath, remote string) error
	Exists(ctx context.Context, remote string) (bool, error)
	List(ctx context.Context, remote string) (string, error)
	Cat(ctx context.Context, remote string) ([]byte, error)
	CopyIn(ctx context.Context, local, containerPath string) error
	MkdirContainer(ctx context.Context, dir string) error
	ContainerFileExists(ctx context.Context, containerPath string) (bool, error)
	RemoveContainerFile(ctx context.Context, containerPath string) error
}

// VerificationError reports a transfer whose tool exit code claimed success
// but whose result could not be observed.
type VerificationError struct {
	Target string
	Detail string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification of %s failed: %s", e.Target, e.Detail)
}

func (e *VerificationError) Unwrap() error { return services.ErrVerification }

// ArtifactDescriptor names one job output to retrieve.
type ArtifactDescriptor struct {
	Name          string
	RemotePath    string
	LocalPath     string
	Header        string
	RequireExists bool
}

// ArtifactResult describes a retrieved artifact.
type ArtifactResult struct {
	Name      string
	LocalPath string
	Rows      int
	Bytes     int64
	SHA256    string
	Attempts  int
	Missing   bool
}

// Transfer describes a completed upload.
type Transfer struct {
	LocalPath  string
	RemotePath string
	Attempts   int
}

// Stager uploads inputs and downloads outputs.
type Stager struct {
	admin        Admin
	logger       *slog.Logger
	sleep        retry.Sleeper
	containerTmp string
	permissions  string
	mkdirPolicy  retry.Policy
	checkPolicy  retry.Policy
	decodeUTF16  bool
}

// Option customises a Stager.
type Option func(*Stager)

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Stager) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// New constructs a Stager from configuration.
func New(cfg *config.Config, admin Admin, logger *slog.Logger, opts ...Option) *Stager {
	s := &Stager{
		admin:        admin,
		logger:       logging.NewComponentLogger(logger, "staging"),
		sleep:        retry.Sleep,
		containerTmp: cfg.Cluster.ContainerTmpDir,
		permissions:  cfg.Cluster.Permissions,
		mkdirPolicy:  retry.Seconds(cfg.Staging.MkdirAttempts, cfg.Staging.MkdirDelaySeconds, cfg.Staging.AttemptTimeoutSeconds),
		checkPolicy:  retry.Seconds(cfg.Retrieval.CheckAttempts, cfg.Retrieval.CheckDelaySeconds, cfg.Staging.AttemptTimeoutSeconds),
		decodeUTF16:  cfg.Retrieval.DecodeUTF16,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadPolicy builds the upload retry policy from configuration.
func UploadPolicy(cfg *config.Config) retry.Policy {
	return retry.Seconds(cfg.Staging.MaxAttempts, cfg.Staging.DelaySeconds, cfg.Staging.AttemptTimeoutSeconds)
}

// Upload places local into remoteDir, replacing any previous copy. Each
// retry is a full re-transfer. The result is verified by an independent
// existence check and listing.
func (s *Stager) Upload(ctx context.Context, local, remoteDir string, policy retry.Policy) (Transfer, error) {
	logger := logging.WithContext(ctx, s.logger)
	transfer := Transfer{LocalPath: local, RemotePath: path.Join(remoteDir, filepath.Base(local))}

	info, err := os.Stat(local)
	if err != nil {
		return transfer, services.Wrap(services.ErrConfiguration, "staging", "upload", fmt.Sprintf("input %q unavailable", local), err)
	}
	if info.IsDir() {
		return transfer, services.Wrap(services.ErrConfiguration, "staging", "upload", fmt.Sprintf("input %q is a directory", local), nil)
	}

	if err := s.ensureRemoteDir(ctx, remoteDir); err != nil {
		return transfer, err
	}

	containerPath := path.Join(s.containerTmp, filepath.Base(local))
	attempts, err := retry.DoWith(ctx, policy, s.retryOptions(logger, "upload"), func(ctx context.Context, _ int) error {
		if err := s.admin.Remove(ctx, transfer.RemotePath); err != nil {
			return services.Wrap(services.ErrTransient, "staging", "clear destination", transfer.RemotePath, err)
		}
		if err := s.admin.CopyIn(ctx, local, containerPath); err != nil {
			return services.Wrap(services.ErrTransient, "staging", "copy into coordinator", containerPath, err)
		}
		if err := s.admin.Put(ctx, containerPath, transfer.RemotePath); err != nil {
			return services.Wrap(services.ErrTransient, "staging", "put", transfer.RemotePath, err)
		}
		return nil
	})
	transfer.Attempts = attempts
	if rmErr := s.admin.RemoveContainerFile(ctx, containerPath); rmErr != nil {
		logger.Debug("container temp cleanup failed", logging.String("path", containerPath), logging.Error(rmErr))
	}
	if err != nil {
		return transfer, err
	}

	if err := s.verifyRemote(ctx, transfer.RemotePath); err != nil {
		return transfer, err
	}
	logger.Info("input staged",
		logging.String("local", local),
		logging.String("remote", transfer.RemotePath),
		logging.Int64("bytes", info.Size()),
		logging.Int("attempts", attempts),
	)
	return transfer, nil
}

// CopyToContainer places a local executable inside the coordinator container
// and confirms it landed.
func (s *Stager) CopyToContainer(ctx context.Context, local, containerDir string, policy retry.Policy) (Transfer, error) {
	logger := logging.WithContext(ctx, s.logger)
	target := path.Join(containerDir, filepath.Base(local))
	transfer := Transfer{LocalPath: local, RemotePath: target}

	if _, err := os.Stat(local); err != nil {
		return transfer, services.Wrap(services.ErrConfiguration, "staging", "copy executable", fmt.Sprintf("%q unavailable", local), err)
	}

	attempts, err := retry.DoWith(ctx, policy, s.retryOptions(logger, "copy-executable"), func(ctx context.Context, _ int) error {
		if err := s.admin.MkdirContainer(ctx, containerDir); err != nil {
			return services.Wrap(services.ErrTransient, "staging", "container mkdir", containerDir, err)
		}
		if err := s.admin.CopyIn(ctx, local, target); err != nil {
			return services.Wrap(services.ErrTransient, "staging", "copy executable", target, err)
		}
		exists, err := s.admin.ContainerFileExists(ctx, target)
		if err != nil {
			return services.Wrap(services.ErrTransient, "staging", "check executable", target, err)
		}
		if !exists {
			return &VerificationError{Target: target, Detail: "file absent after copy"}
		}
		return nil
	})
	transfer.Attempts = attempts
	if err != nil {
		return transfer, err
	}
	logger.Info("job executable staged", logging.String("path", target), logging.Int("attempts", attempts))
	return transfer, nil
}

// Download retrieves one artifact. The remote file must pass an existence
// check before it is read.
func (s *Stager) Download(ctx context.Context, artifact ArtifactDescriptor) (ArtifactResult, error) {
	logger := logging.WithContext(ctx, s.logger).With(logging.String("artifact", artifact.Name))
	result := ArtifactResult{Name: artifact.Name, LocalPath: artifact.LocalPath}

	checks, err := retry.DoWith(ctx, s.checkPolicy, s.retryOptions(logger, "exists"), func(ctx context.Context, _ int) error {
		exists, err := s.admin.Exists(ctx, artifact.RemotePath)
		if err != nil {
			return services.Wrap(services.ErrTransient, "staging", "exists", artifact.RemotePath, err)
		}
		if !exists {
			return ErrArtifactMissing
		}
		return nil
	})
	result.Attempts = checks
	if err != nil {
		if !errors.Is(err, ErrArtifactMissing) {
			return result, err
		}
		result.Missing = true
		if !artifact.RequireExists {
			logger.Info("optional artifact absent", logging.String("remote", artifact.RemotePath))
			return result, nil
		}
		return result, fmt.Errorf("%s %s: %w", artifact.Name, artifact.RemotePath, ErrArtifactMissing)
	}

	var data []byte
	if _, err := retry.DoWith(ctx, s.checkPolicy, s.retryOptions(logger, "cat"), func(ctx context.Context, _ int) error {
		var catErr error
		data, catErr = s.admin.Cat(ctx, artifact.RemotePath)
		if catErr != nil {
			return services.Wrap(services.ErrTransient, "staging", "cat", artifact.RemotePath, catErr)
		}
		return nil
	}); err != nil {
		return result, err
	}

	if s.decodeUTF16 {
		decoded, changed, err := decodeUTF16(data)
		if err != nil {
			return result, services.Wrap(services.ErrVerification, "staging", "decode", artifact.RemotePath, err)
		}
		if changed {
			logger.Debug("decoded UTF-16 artifact")
		}
		data = decoded
	}

	if err := fileutil.WriteAtomic(artifact.LocalPath, 0o644, func(w io.Writer) error {
		if artifact.Header != "" {
			if _, err := io.WriteString(w, artifact.Header+"\n"); err != nil {
				return err
			}
		}
		_, err := w.Write(data)
		return err
	}); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "staging", "write artifact", artifact.LocalPath, err)
	}

	sum, size, err := fileutil.Digest(artifact.LocalPath)
	if err != nil {
		return result, &VerificationError{Target: artifact.LocalPath, Detail: err.Error()}
	}
	result.SHA256 = sum
	result.Bytes = size
	result.Rows = countRows(data)
	logger.Info("artifact retrieved",
		logging.String("local", artifact.LocalPath),
		logging.Int("rows", result.Rows),
		logging.Int64("bytes", size),
	)
	return result, nil
}

func (s *Stager) ensureRemoteDir(ctx context.Context, remoteDir string) error {
	logger := logging.WithContext(ctx, s.logger)
	_, err := retry.DoWith(ctx, s.mkdirPolicy, s.retryOptions(logger, "mkdir"), func(ctx context.Context, _ int) error {
		if err := s.admin.Mkdir(ctx, remoteDir); err != nil {
			return services.Wrap(services.ErrTransient, "staging", "mkdir", remoteDir, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.permissions != "" {
		if err := s.admin.Chmod(ctx, s.permissions, remoteDir); err != nil {
			logger.Debug("chmod of staging directory failed", logging.String("dir", remoteDir), logging.Error(err))
		}
	}
	return nil
}

func (s *Stager) verifyRemote(ctx context.Context, remote string) error {
	logger := logging.WithContext(ctx, s.logger)
	var listing string
	_, err := retry.DoWith(ctx, s.checkPolicy, s.retryOptions(logger, "verify"), func(ctx context.Context, _ int) error {
		exists, err := s.admin.Exists(ctx, remote)
		if err != nil {
			return services.Wrap(services.ErrTransient, "staging", "verify", remote, err)
		}
		if !exists {
			return &VerificationError{Target: remote, Detail: "not present after put"}
		}
		listing, err = s.admin.List(ctx, remote)
		if err != nil {
			return services.Wrap(services.ErrTransient, "staging", "verify listing", remote, err)
		}
		if !strings.Contains(listing, remote) {
			return &VerificationError{Target: remote, Detail: "listing does not include file"}
		}
		return nil
	})
	return err
}

func (s *Stager) retryOptions(logger *slog.Logger, op string) retry.Options {
	return retry.Options{
		Sleep: s.sleep,
		OnRetry: func(attempt int, err error) {
			logger.Warn("staging attempt failed; retrying",
				logging.String("operation", op),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err),
			)
		},
	}
}

func countRows(data []byte) int {
	rows := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			rows++
		}
	}
	return rows
}
