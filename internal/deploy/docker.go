package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
	"github.com/vacp2p/simsched/pkg/simsched"
	"golang.org/x/sync/errgroup"
)

// Roles of the containers of a job
const (
	roleBootstrap = "bootstrap"
	roleNode      = "nodes"
)

// containerSpec describes one container of a job
type containerSpec struct {
	Name    string
	Role    string
	Cmd     []string
	Labels  map[string]string
	Env     []string
	Publish bool // Whether the REST port gets published on the host
}

// DockerExecutor runs every configuration as a set of containers on the local docker daemon.
// It is meant for small simulations which do not need a cluster.
type DockerExecutor struct {
	RestPort int    // The REST API port of the node image
	Label    string // The label put on every container, used to find them when cleaning up

	MaxConcurrentCreates int // How many containers of a job are created at once. Defaults to 8

	Healthcheck *Healthcheck // Checked against the published REST API once all containers started. Skipped if nil

	Minute time.Duration // The length of one minute of run time. Defaults to [time.Minute]

	Log *logrus.Logger // The log to which information gets printed to

	cli     *client.Client
	initErr error
	once    sync.Once
}

func (d *DockerExecutor) init() error {
	d.once.Do(func() {
		if d.Log == nil {
			d.Log = logrus.New()
			d.Log.SetOutput(io.Discard)
		}
		if d.Label == "" {
			d.Label = "simsched"
		}
		if d.MaxConcurrentCreates < 1 {
			d.MaxConcurrentCreates = 8
		}
		d.cli, d.initErr = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if d.initErr != nil {
			d.initErr = errors.Join(fmt.Errorf("docker client creation failed"), d.initErr)
		}
	})
	return d.initErr
}

// Close closes the connection to the docker daemon
func (d *DockerExecutor) Close() error {
	if d.cli == nil {
		return nil
	}
	return d.cli.Close()
}

// containerSpecs returns the containers making up the job of config.
// Bootstrap containers come first, the first one of them publishes its REST port.
func containerSpecs(config simsched.RunConfiguration, runID, label string) []containerSpec {
	labels := func(role string) map[string]string {
		return map[string]string{
			label:                   "1",
			label + ".release":      config.ReleaseName(),
			label + ".role":         role,
			label + ".run":          runID,
			label + ".digest":       config.Digest(),
			label + ".issue":        strconv.Itoa(config.IssueID),
			label + ".config-index": strconv.Itoa(config.Index),
		}
	}

	env := []string{
		"PUBSUB_TOPIC=" + config.PubsubTopic,
		"ARTIFICIAL_LATENCY=" + strconv.FormatBool(config.ArtificialLatency.Enabled),
		"LATENCY_MS=" + strconv.Itoa(config.ArtificialLatency.LatencyMs),
	}

	specs := make([]containerSpec, 0, max(config.BootstrapNodes, 0)+max(config.NodeCount, 0))
	for i := 0; i < config.BootstrapNodes; i++ {
		specs = append(specs, containerSpec{
			Name:    fmt.Sprintf("%s-%s-%s-%d", label, runID, roleBootstrap, i),
			Role:    roleBootstrap,
			Cmd:     config.BootstrapCommand,
			Labels:  labels(roleBootstrap),
			Env:     env,
			Publish: i == 0,
		})
	}
	for i := 0; i < config.NodeCount; i++ {
		specs = append(specs, containerSpec{
			Name:   fmt.Sprintf("%s-%s-%s-%d", label, runID, roleNode, i),
			Role:   roleNode,
			Cmd:    config.NodeCommand,
			Labels: labels(roleNode),
			Env:    env,
		})
	}
	return specs
}

// Start pulls the image of config and starts all of its containers.
// If any container fails to start, all containers created so far are removed again.
func (d *DockerExecutor) Start(ctx context.Context, config simsched.RunConfiguration) (simsched.JobHandle, error) {
	if err := d.init(); err != nil {
		return nil, err
	}

	release := config.ReleaseName()
	runID := strings.ToLower(uniuri.NewLen(8))
	log := d.Log.WithFields(logrus.Fields{"release": release, "run": runID})

	log.Infof("Pulling image %s", config.Image)
	pull, err := d.cli.ImagePull(ctx, config.Image, image.PullOptions{})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to pull image %s", config.Image), err)
	}
	out, err := io.ReadAll(pull)
	pull.Close()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to pull image %s", config.Image), err)
	}
	log.Tracef("Image pull output:\n%s", out)

	specs := containerSpecs(config, runID, d.Label)

	ids := make([]string, len(specs))
	ports := make([]int, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.MaxConcurrentCreates)
	for i, spec := range specs {
		g.Go(func() error {
			id, port, err := d.startContainer(gctx, config.Image, spec)
			ids[i], ports[i] = id, port
			return err
		})
	}
	if err := g.Wait(); err != nil {
		d.removeContainers(context.WithoutCancel(ctx), log, ids)
		return nil, err
	}
	log.Infof("Started %d containers", len(specs))

	if err := d.checkHealth(ctx, log, ports); err != nil {
		d.removeContainers(context.WithoutCancel(ctx), log, ids)
		return nil, err
	}

	handle := newAsyncHandle()
	go func() {
		handle.done <- d.run(ctx, log, config, ids)
	}()

	return handle, nil
}

// checkHealth performs the healthcheck on every published port
func (d *DockerExecutor) checkHealth(ctx context.Context, log *logrus.Entry, ports []int) error {
	if d.Healthcheck == nil {
		return nil
	}
	for _, port := range ports {
		if port == 0 {
			continue
		}
		log.Debugf("Performing healthcheck on port %d", port)
		ok, err := d.Healthcheck.perform(ctx, port)
		if !ok {
			return errors.Join(fmt.Errorf("healthcheck of REST API on port %d failed", port), err)
		}
	}
	return nil
}

// startContainer creates and starts the container of spec.
// The returned port is the host port of the REST API, or 0 if it was not published.
func (d *DockerExecutor) startContainer(ctx context.Context, imageName string, spec containerSpec) (string, int, error) {
	containerConfig := &container.Config{
		Image:  imageName,
		Cmd:    spec.Cmd,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostConfig := &container.HostConfig{}

	var hostPort int
	if spec.Publish && d.RestPort != 0 {
		natPort := nat.Port(fmt.Sprintf("%d/tcp", d.RestPort))

		var err error
		hostPort, err = freeport.GetFreePort()
		if err != nil {
			return "", 0, err
		}

		containerConfig.ExposedPorts = nat.PortSet{natPort: struct{}{}}
		hostConfig.PortBindings = nat.PortMap{natPort: []nat.PortBinding{{HostPort: fmt.Sprint(hostPort)}}}
		d.Log.Infof("REST API of %s is available on port %d", spec.Name, hostPort)
	}

	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", 0, errors.Join(fmt.Errorf("container creation with name %s of image %s failed", spec.Name, imageName), err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, 0, errors.Join(fmt.Errorf("container start with name %s and id %s failed", spec.Name, resp.ID), err)
	}

	return resp.ID, hostPort, nil
}

// run waits for the duration of the job, checks all containers survived and removes them
func (d *DockerExecutor) run(ctx context.Context, log *logrus.Entry, config simsched.RunConfiguration, ids []string) simsched.Outcome {
	waitErr := runFor(ctx, log, config.Duration, d.Minute)

	cleanupCtx := context.WithoutCancel(ctx)
	var crashed []string
	for _, id := range ids {
		info, err := d.cli.ContainerInspect(cleanupCtx, id)
		if err != nil {
			crashed = append(crashed, id)
			continue
		}
		if info.ContainerJSONBase == nil || info.State == nil || !info.State.Running {
			crashed = append(crashed, id)
		}
	}

	log.Info("Removing containers...")
	d.removeContainers(cleanupCtx, log, ids)

	if waitErr != nil {
		return simsched.JobFailed(waitErr)
	}
	if len(crashed) > 0 {
		return simsched.JobFailed(fmt.Errorf("%d of %d containers stopped early: %s", len(crashed), len(ids), strings.Join(crashed, ", ")))
	}
	return simsched.Success()
}

func (d *DockerExecutor) removeContainers(ctx context.Context, log *logrus.Entry, ids []string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
			log.Warnf("Failed to remove container %s - %v", id, err)
		}
	}
}
