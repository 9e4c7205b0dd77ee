package testutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
)

// Environment variables that enable container tests.
const (
	// VLLMModelEnv names a small vision model to serve in vLLM tests.
	VLLMModelEnv = "PDFOCR_TEST_VLLM_MODEL"
	// VLLMImageEnv overrides the vLLM image used in tests.
	VLLMImageEnv = "PDFOCR_TEST_VLLM_IMAGE"
)

// VLLMTestConfig holds vLLM container settings without importing the vllm package.
type VLLMTestConfig struct {
	ContainerName string
	Image         string
	Model         string
	HostPort      string
	CachePath     string
	Labels        map[string]string
}

// NewVLLMConfig returns container settings with a unique name and a free port.
// The test is skipped unless VLLMModelEnv is set.
func NewVLLMConfig(t *testing.T) VLLMTestConfig {
	t.Helper()

	model := os.Getenv(VLLMModelEnv)
	if model == "" {
		t.Skipf("%s not set", VLLMModelEnv)
	}

	// Register Docker cleanup for this test
	_ = DockerClient(t)

	port, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}

	// Share the cache across runs so the model downloads once.
	cachePath := os.Getenv("PDFOCR_TEST_MODEL_CACHE")
	if cachePath == "" {
		cachePath = filepath.Join(os.TempDir(), "pdfocr-test-models")
	}

	return VLLMTestConfig{
		ContainerName: UniqueContainerName(t, "vllm"),
		Image:         os.Getenv(VLLMImageEnv),
		Model:         model,
		HostPort:      port,
		CachePath:     cachePath,
		Labels:        ContainerLabels(t),
	}
}

// URL returns the server root URL for the config.
func (c VLLMTestConfig) URL() string {
	return fmt.Sprintf("http://localhost:%s", c.HostPort)
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}
