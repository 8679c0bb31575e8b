package probe

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Service answers whether a managed server's container is currently running,
// via the local Docker engine API.
type Service struct {
	docker *client.Client
}

// NewService creates a probe against the local Docker daemon.
func NewService() (*Service, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	return &Service{docker: docker}, nil
}

// Running reports whether the container is in the running state.
func (s *Service) Running(ctx context.Context, containerID string) (bool, error) {
	inspect, err := s.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	if inspect.State == nil {
		return false, nil
	}
	return inspect.State.Running, nil
}

// Close releases the underlying docker client.
func (s *Service) Close() error {
	return s.docker.Close()
}
