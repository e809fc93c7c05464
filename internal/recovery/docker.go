package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/slawatch/slawatch/internal/model"
)

// DefaultServiceLabel is the container label carrying the monitored service name
const DefaultServiceLabel = "com.slawatch.service"

// DockerConfig tunes the container restart adapter
type DockerConfig struct {
	ServiceLabel string
	StopTimeout  time.Duration
}

// dockerAPI is the slice of the Docker engine client the adapter needs
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// DockerRestartAdapter restarts a service's containers through the Docker
// engine API. Containers are located by service label, so one monitored
// service may map to several containers.
type DockerRestartAdapter struct {
	logger *zap.Logger
	cfg    DockerConfig
	docker dockerAPI
}

// NewDockerRestartAdapter creates the adapter with a Docker client from the
// environment (DOCKER_HOST et al) and API version negotiation
func NewDockerRestartAdapter(logger *zap.Logger, cfg DockerConfig) (*DockerRestartAdapter, error) {
	docker, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if cfg.ServiceLabel == "" {
		cfg.ServiceLabel = DefaultServiceLabel
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	return &DockerRestartAdapter{
		logger: logger.Named("docker"),
		cfg:    cfg,
		docker: docker,
	}, nil
}

// Action implements RemediationAdapter.Action.
func (a *DockerRestartAdapter) Action() model.RecoveryAction {
	return model.ActionRestartService
}

// Execute implements RemediationAdapter.Execute.
func (a *DockerRestartAdapter) Execute(ctx context.Context, service string, _ model.RecoveryAction) (map[string]interface{}, error) {
	containers, err := a.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", a.cfg.ServiceLabel+"="+service)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("no containers labeled %s=%s", a.cfg.ServiceLabel, service)
	}

	timeout := int(a.cfg.StopTimeout.Seconds())
	restarted := make([]string, 0, len(containers))
	for _, c := range containers {
		if err := a.docker.ContainerRestart(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			return map[string]interface{}{"restarted": restarted},
				fmt.Errorf("failed to restart container %s: %w", containerName(c), err)
		}
		restarted = append(restarted, containerName(c))

		a.logger.Info("Container restarted",
			zap.String("service", service),
			zap.String("container", containerName(c)))
	}

	return map[string]interface{}{
		"restarted": restarted,
		"count":     len(restarted),
	}, nil
}

func containerName(c types.Container) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) >= 12 {
		return c.ID[:12]
	}
	return c.ID
}
