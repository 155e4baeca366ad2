package deploy

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vacp2p/simsched/pkg/simsched"
)

// DryRunExecutor only logs the configurations it is handed. Every job succeeds immediately.
type DryRunExecutor struct {
	Log *logrus.Logger
}

func (d *DryRunExecutor) Start(ctx context.Context, config simsched.RunConfiguration) (simsched.JobHandle, error) {
	if d.Log == nil {
		d.Log = logrus.New()
		d.Log.SetOutput(io.Discard)
	}
	d.Log.WithField("release", config.ReleaseName()).Infof("Dry run: %d nodes and %d bootstrap nodes running %s for %d minutes on %s",
		config.NodeCount, config.BootstrapNodes, config.Image, config.Duration, config.PubsubTopic)

	h := newAsyncHandle()
	h.done <- simsched.Success()
	return h, nil
}
