package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vacp2p/simsched/pkg/simsched"
)

// HelmExecutor deploys every configuration as a release of the waku helm chart.
// A job runs for the duration of its configuration, after which its release gets uninstalled and the analysis is run.
type HelmExecutor struct {
	Chart     string // The chart to install, as understood by helm
	Namespace string // The namespace to install releases into

	ValuesDir string // The directory rendered values files are written to

	Helm    string // The helm binary
	Kubectl string // The kubectl binary

	Runner   CommandRunner // Runs helm and kubectl. Defaults to [ExecRunner]
	Analyzer *Analyzer     // Analyzes a finished release. Analysis is skipped if nil

	Minute time.Duration // The length of one minute of run time. Defaults to [time.Minute]

	Log *logrus.Logger // The log to which information gets printed to
}

func (h *HelmExecutor) init() {
	if h.Log == nil {
		h.Log = logrus.New()
		h.Log.SetOutput(io.Discard)
	}
	if h.Runner == nil {
		h.Runner = ExecRunner{}
	}
	if h.Helm == "" {
		h.Helm = "helm"
	}
	if h.Kubectl == "" {
		h.Kubectl = "kubectl"
	}
	if h.ValuesDir == "" {
		h.ValuesDir = os.TempDir()
	}
}

// Start installs the release of config. Installation failures are returned as errors.
func (h *HelmExecutor) Start(ctx context.Context, config simsched.RunConfiguration) (simsched.JobHandle, error) {
	h.init()

	release := config.ReleaseName()
	log := h.Log.WithField("release", release)
	log.Infof("Deploying configuration with %d nodes for %d minutes using %s", config.NodeCount, config.Duration, config.Image)

	values, err := RenderValues(config)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to render values of %s", release), err)
	}
	valuesFile := filepath.Join(h.ValuesDir, fmt.Sprintf("values-%s.yaml", release))
	if err := os.WriteFile(valuesFile, values, 0644); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to write values of %s to %s", release, valuesFile), err)
	}
	log.Tracef("Values:\n%s", values)

	// Fails if the namespace exists already
	if out, err := h.Runner.Run(ctx, "", h.Kubectl, "create", "namespace", h.Namespace); err != nil {
		log.Debugf("Namespace %s not created, it might already exist - %v: %s", h.Namespace, err, out)
	}

	start := time.Now()
	out, err := h.Runner.Run(ctx, "", h.Helm, "upgrade", "--install", release, h.Chart, "-f", valuesFile, "--namespace", h.Namespace)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("helm install of %s failed, output: %s", release, out), err)
	}
	log.Infof("Deployed release %s", release)
	log.Debugf("Helm output: %s", out)

	handle := newAsyncHandle()
	go func() {
		handle.done <- h.run(ctx, log, config, start)
	}()

	return handle, nil
}

// run waits for a deployed release to finish and cleans it up afterwards
func (h *HelmExecutor) run(ctx context.Context, log *logrus.Entry, config simsched.RunConfiguration, start time.Time) simsched.Outcome {
	release := config.ReleaseName()
	waitErr := runFor(ctx, log, config.Duration, h.Minute)
	end := time.Now()

	// Clean up even if the run was cancelled
	cleanupCtx := context.WithoutCancel(ctx)
	log.Info("Cleaning up release...")
	if out, err := h.Runner.Run(cleanupCtx, "", h.Helm, "uninstall", release, "--namespace", h.Namespace); err != nil {
		log.Warnf("Failed to uninstall release - %v, output: %s", err, out)
	}

	if waitErr != nil {
		return simsched.JobFailed(waitErr)
	}

	if h.Analyzer != nil {
		if err := h.Analyzer.Analyze(cleanupCtx, release, start, end); err != nil {
			log.Warnf("Analysis failed and may require manual execution - %v", err)
		}
	}

	log.Infof("Completed simulation for %d nodes running for %d minutes", config.NodeCount, config.Duration)
	return simsched.Success()
}
