package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SourceEnv is the environment variable carrying the candidate program into the container.
const SourceEnv = "CANDIDATE_SOURCE"

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "interview_prep",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Duration of sandboxed code runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview_prep",
		Subsystem: "sandbox",
		Name:      "run_timeouts_total",
		Help:      "Number of sandboxed runs that hit the timeout",
	}, []string{"image"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interview_prep",
		Subsystem: "sandbox",
		Name:      "run_failures_total",
		Help:      "Number of sandboxed runs that failed before producing a result",
	}, []string{"image"})
)

// Executor runs a single program inside an isolated container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one sandboxed run. Source is handed to Cmd through SourceEnv.
type ExecutionRequest struct {
	Image         string
	Cmd           []string
	Source        string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
}

// ExecutionResult summarises the outcome of a sandboxed run.
type ExecutionResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	Duration         time.Duration
	TimedOut         bool
	MemoryUsageBytes int64
}

// Config groups executor defaults.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

// DockerExecutor implements Executor with throwaway Docker containers. Containers run with
// networking disabled, a read-only root filesystem and a small tmpfs scratch directory.
type DockerExecutor struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed executor.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/interview-prep-api/pkg/docker"),
		logger: logger.With().Str("component", "sandbox").Logger(),
	}, nil
}

// Run executes the request inside a fresh container and always removes it afterwards.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if req.Image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "docker.executor.run", trace.WithAttributes(
		attribute.String("docker.image", req.Image),
		attribute.Int("source.length", len(req.Source)),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config := &container.Config{
		Image:           req.Image,
		Cmd:             req.Cmd,
		Env:             []string{SourceEnv + "=" + req.Source},
		WorkingDir:      "/tmp",
		NetworkDisabled: true,
		AttachStdout:    true,
		AttachStderr:    true,
	}

	start := time.Now()
	result := ExecutionResult{}

	resp, err := e.client.ContainerCreate(ctx, config, e.hostConfig(req), &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return result, e.fail(span, req.Image, fmt.Errorf("container create: %w", err))
	}

	containerID := resp.ID
	defer e.remove(containerID)

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return result, e.fail(span, req.Image, fmt.Errorf("container start: %w", err))
	}

	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	result.Duration = time.Since(start)
	runDuration.WithLabelValues(req.Image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if !errors.Is(waitErr, context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, e.fail(span, req.Image, fmt.Errorf("container wait: %w", waitErr))
		}
		result.TimedOut = true
		runTimeouts.WithLabelValues(req.Image).Inc()
		span.SetStatus(codes.Error, "execution timed out")
		e.kill(containerID)
	}

	// The run context may already be expired here, output is read with the caller's context.
	e.collectOutput(parent, containerID, &result)

	if result.TimedOut {
		return result, fmt.Errorf("execution timed out after %s", timeout)
	}
	return result, nil
}

func (e *DockerExecutor) hostConfig(req ExecutionRequest) *container.HostConfig {
	memory := req.MemoryLimitMB
	if memory == 0 {
		memory = e.cfg.MemoryLimitMB
	}
	shares := req.CPUShares
	if shares == 0 {
		shares = e.cfg.CPUShares
	}

	return &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,exec,size=64m"},
		Resources: container.Resources{
			Memory:    memory * 1024 * 1024,
			CPUShares: shares,
		},
	}
}

func (e *DockerExecutor) collectOutput(ctx context.Context, containerID string, result *ExecutionResult) {
	logs, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	} else {
		defer logs.Close()
		stdout, stderr, err := splitDockerLogs(logs)
		if err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		}
		result.Stdout = stdout
		result.Stderr = stderr
	}

	statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stats, err := e.client.ContainerStatsOneShot(statsCtx, containerID)
	if err != nil {
		return
	}
	defer stats.Body.Close()

	var data types.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&data); err == nil {
		result.MemoryUsageBytes = int64(data.MemoryStats.Usage)
	}
}

func (e *DockerExecutor) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.client.ContainerKill(ctx, containerID, "KILL"); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
	}
}

func (e *DockerExecutor) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
	}
}

func (e *DockerExecutor) fail(span trace.Span, image string, err error) error {
	runFailures.WithLabelValues(image).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return stdoutBuf.String(), stderrBuf.String(), err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the executor's underlying client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
