// Package testutil holds helpers for tests that need Docker.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// CleanupLabel marks containers started by tests. Its value is the test name.
const CleanupLabel = "pdfocr-test"

// TestingT is the part of testing.T the Docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

// DockerClient connects to the local daemon and removes the test's labelled
// containers when it finishes. The test is skipped when Docker is not reachable.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := connect()
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := removeContainers(ctx, cli, CleanupLabel+"="+t.Name())
		if err != nil {
			t.Logf("container cleanup: %v", err)
		}
		for _, name := range removed {
			t.Logf("removed container %s", name)
		}
		_ = cli.Close()
	})
	return cli
}

// SweepContainers removes every test-labelled container, including ones left
// behind by interrupted runs. Intended for TestMain.
func SweepContainers(ctx context.Context) ([]string, error) {
	cli, err := connect()
	if err != nil {
		return nil, err
	}
	defer cli.Close()
	return removeContainers(ctx, cli, CleanupLabel)
}

// UniqueContainerName returns pdfocr-test-<prefix>-<test>-<random>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("pdfocr-test-%s-%s-%s", prefix, sanitizeName(t.Name()), hex.EncodeToString(suffix))
}

// ContainerLabels returns labels that tie a container to the test for cleanup.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

func connect() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker is not running: %w", err)
	}
	return cli, nil
}

// removeContainers force-removes containers matching a label filter
// ("key" or "key=value") and returns their names.
func removeContainers(ctx context.Context, cli *client.Client, label string) ([]string, error) {
	list, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", label)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var removed []string
	for _, c := range list {
		// Force removal kills a running container; the model cache is a bind mount and survives.
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("failed to remove container %s: %w", c.ID[:12], err)
		}
		if len(c.Names) > 0 {
			removed = append(removed, c.Names[0])
		} else {
			removed = append(removed, c.ID[:12])
		}
	}
	return removed, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// sanitizeName turns a test name into a container name component of at most 30 bytes.
func sanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllStringFunc(name, func(s string) string {
		if s[0] == '/' || s[0] == '_' {
			return "-"
		}
		return ""
	})
	if len(name) > 30 {
		name = name[:30]
	}
	return name
}
