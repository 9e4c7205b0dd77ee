// Package vllm manages a local vLLM container serving an OpenAI-compatible
// chat-completions endpoint for the self-hosted provider.
package vllm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	DefaultImage         = "vllm/vllm-openai:latest"
	DefaultContainerName = "pdfocr-vllm"
	DefaultPort          = "8000"
	ContainerPort        = "8000/tcp"
	CacheDir             = "/root/.cache/huggingface"
	Label                = "pdfocr-vllm"

	// DefaultReadyTimeout covers model download and load on first start.
	DefaultReadyTimeout = 15 * time.Minute
)

// ContainerStatus represents the state of the vLLM container.
type ContainerStatus string

const (
	StatusRunning   ContainerStatus = "running"
	StatusStopped   ContainerStatus = "stopped"
	StatusNotFound  ContainerStatus = "not_found"
	StatusUnhealthy ContainerStatus = "unhealthy"
	StatusStarting  ContainerStatus = "starting"
)

// DockerManager manages the vLLM Docker container lifecycle.
type DockerManager struct {
	cli           *client.Client
	containerName string
	imageName     string
	model         string
	cachePath     string // Host path for the model cache (~/.pdfocr/models)
	hostPort      string
	gpus          string
	maxModelLen   int
	hfToken       string
	labels        map[string]string
	readyTimeout  time.Duration
}

// DockerConfig holds configuration for the Docker manager.
type DockerConfig struct {
	ContainerName string
	Image         string
	Model         string // Hugging Face model id served by vLLM
	CachePath     string
	HostPort      string
	GPUs          string // "all" or a device count
	MaxModelLen   int
	HFTokenEnv    string // Environment variable holding a Hugging Face token
	Labels        map[string]string
	ReadyTimeout  time.Duration
}

// NewDockerManager creates a new Docker manager for vLLM.
func NewDockerManager(cfg DockerConfig) (*DockerManager, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	m := newManager(cfg)
	m.cli = cli
	return m, nil
}

// newManager applies defaults without touching Docker.
func newManager(cfg DockerConfig) *DockerManager {
	if cfg.ContainerName == "" {
		cfg.ContainerName = DefaultContainerName
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.HostPort == "" {
		cfg.HostPort = DefaultPort
	}
	if cfg.GPUs == "" {
		cfg.GPUs = "all"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}

	labels := map[string]string{Label: "true"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}

	var token string
	if cfg.HFTokenEnv != "" {
		token = os.Getenv(cfg.HFTokenEnv)
	}

	return &DockerManager{
		containerName: cfg.ContainerName,
		imageName:     cfg.Image,
		model:         cfg.Model,
		cachePath:     cfg.CachePath,
		hostPort:      cfg.HostPort,
		gpus:          cfg.GPUs,
		maxModelLen:   cfg.MaxModelLen,
		hfToken:       token,
		labels:        labels,
		readyTimeout:  cfg.ReadyTimeout,
	}
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// Start starts the vLLM container and waits for the server to answer.
func (m *DockerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}

	switch status {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
		return m.waitForReady(ctx, m.readyTimeout)
	case StatusNotFound:
		return m.createAndStart(ctx)
	default:
		return fmt.Errorf("container in unexpected state: %s", status)
	}
}

// Stop stops the vLLM container.
func (m *DockerManager) Stop(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	timeout := 30
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// Remove stops and removes the vLLM container. The model cache is kept.
func (m *DockerManager) Remove(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	if status == StatusRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Status returns the current status of the vLLM container.
func (m *DockerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.getContainerStatus(ctx)
	return status, err
}

// Logs returns the container logs.
func (m *DockerManager) Logs(ctx context.Context, tail string) (string, error) {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return "", err
	}
	if status == StatusNotFound {
		return "", fmt.Errorf("container not found")
	}

	logs, err := m.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	logBytes, err := io.ReadAll(logs)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(logBytes), nil
}

// URL returns the server root URL.
func (m *DockerManager) URL() string {
	return fmt.Sprintf("http://localhost:%s", m.hostPort)
}

// BaseURL returns the OpenAI-compatible API base URL.
func (m *DockerManager) BaseURL() string {
	return m.URL() + "/v1"
}

// WaitReady waits for the server's health endpoint.
func (m *DockerManager) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.readyTimeout
	}
	return m.waitForReady(ctx, timeout)
}

func (m *DockerManager) createAndStart(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}
	if m.cachePath != "" {
		if err := os.MkdirAll(m.cachePath, 0o755); err != nil {
			return fmt.Errorf("failed to create model cache: %w", err)
		}
	}

	resp, err := m.cli.ContainerCreate(ctx, m.containerConfig(), m.hostConfig(), nil, nil, m.containerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}

	return m.waitForReady(ctx, m.readyTimeout)
}

// serverArgs are passed to the image's vLLM entrypoint.
func (m *DockerManager) serverArgs() []string {
	args := []string{
		"--model", m.model,
		"--host", "0.0.0.0",
		"--port", "8000",
	}
	if m.maxModelLen > 0 {
		args = append(args, "--max-model-len", strconv.Itoa(m.maxModelLen))
	}
	return args
}

func (m *DockerManager) containerConfig() *container.Config {
	cfg := &container.Config{
		Image:  m.imageName,
		Cmd:    m.serverArgs(),
		Labels: m.labels,
		ExposedPorts: nat.PortSet{
			ContainerPort: struct{}{},
		},
	}
	if m.hfToken != "" {
		cfg.Env = []string{"HF_TOKEN=" + m.hfToken}
	}
	return cfg
}

func (m *DockerManager) hostConfig() *container.HostConfig {
	hc := &container.HostConfig{
		PortBindings: nat.PortMap{
			ContainerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: m.hostPort},
			},
		},
		IpcMode: container.IpcMode("host"),
		Resources: container.Resources{
			DeviceRequests: []container.DeviceRequest{
				{
					Driver:       "nvidia",
					Count:        gpuCount(m.gpus),
					Capabilities: [][]string{{"gpu"}},
				},
			},
		},
	}
	if m.cachePath != "" {
		hc.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: m.cachePath,
				Target: CacheDir,
			},
		}
	}
	return hc
}

// gpuCount maps "all" (or anything unparsable) to -1, Docker's "all devices".
func gpuCount(gpus string) int {
	n, err := strconv.Atoi(gpus)
	if err != nil || n <= 0 {
		return -1
	}
	return n
}

func (m *DockerManager) getContainerStatus(ctx context.Context) (ContainerStatus, string, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", m.containerName)

	containers, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}

	if len(containers) == 0 {
		return StatusNotFound, "", nil
	}

	c := containers[0]
	switch c.State {
	case "running":
		return StatusRunning, c.ID, nil
	case "exited", "dead":
		return StatusStopped, c.ID, nil
	case "created", "restarting":
		return StatusStarting, c.ID, nil
	default:
		return ContainerStatus(c.State), c.ID, nil
	}
}

// waitForReady polls the vLLM health endpoint until ready.
func (m *DockerManager) waitForReady(ctx context.Context, timeout time.Duration) error {
	return pollHealth(ctx, m.URL()+"/health", timeout, 2*time.Second)
}

func pollHealth(ctx context.Context, url string, timeout, interval time.Duration) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	attempts := uint(timeout / interval)
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// ensureImage pulls the vLLM image if not present.
func (m *DockerManager) ensureImage(ctx context.Context) error {
	_, err := m.cli.ImageInspect(ctx, m.imageName)
	if err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
