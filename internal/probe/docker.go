package probe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerStatsReader reads one-shot resource usage stats from the Docker
// daemon, for containers where cgroup files aren't directly reachable from
// this process (e.g. a remote or rootless daemon). Client construction
// mirrors lib/images/docker.go's NewDockerClient.
type DockerStatsReader struct {
	cli *client.Client
}

// NewDockerStatsReader creates a reader using the standard Docker
// environment variables (DOCKER_HOST, DOCKER_CERT_PATH, ...).
func NewDockerStatsReader() (*DockerStatsReader, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerStatsReader{cli: cli}, nil
}

// Close releases the underlying Docker client connection.
func (r *DockerStatsReader) Close() error {
	return r.cli.Close()
}

// DockerStatsSample is the subset of the daemon's stats response needed for
// utilization reporting.
type DockerStatsSample struct {
	CPUUsageNanos   uint64
	SystemCPUNanos  uint64
	OnlineCPUs      uint32
	MemoryUseBytes  uint64
	MemoryLimitBytes uint64
}

// ReadDockerStats fetches a single point-in-time stats sample for the
// container id via the Docker API's one-shot stats endpoint.
func (r *DockerStatsReader) ReadDockerStats(ctx context.Context, id string) (DockerStatsSample, error) {
	resp, err := r.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return DockerStatsSample{}, fmt.Errorf("stats for container %s: %w", id, err)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return DockerStatsSample{}, fmt.Errorf("decode stats for container %s: %w", id, err)
	}

	return DockerStatsSample{
		CPUUsageNanos:    raw.CPUStats.CPUUsage.TotalUsage,
		SystemCPUNanos:   raw.CPUStats.SystemUsage,
		OnlineCPUs:       raw.CPUStats.OnlineCPUs,
		MemoryUseBytes:   raw.MemoryStats.Usage,
		MemoryLimitBytes: raw.MemoryStats.Limit,
	}, nil
}
