package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vacp2p/simsched/internal/config"
	"github.com/vacp2p/simsched/internal/deploy"
	"github.com/vacp2p/simsched/internal/discovery"
	"github.com/vacp2p/simsched/pkg/simsched"
)

var runCmd = &cobra.Command{
	Use:   "run owner/repo",
	Short: "Run the first approved simulation request of a repository",
	Long: `Run the first approved simulation request of a repository.

An issue is an approved request if it carries the approval label, was labelled by an authorized user
and does not carry the done label yet. Every configuration the request asks for is run using the
configured executor backend.

The GitHub token is read from --token, SIMSCHED_TOKEN or GITHUB_TOKEN.
With --every, the repository is checked again periodically until the process is stopped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo := args[0]
		conf := loadConfig()
		log := newLogger()

		backend := conf.Executor.Backend
		if viper.GetBool("dry-run") {
			backend = config.BackendDryRun
		}
		executor, closeExecutor := newExecutor(backend, conf, log)
		defer closeExecutor()

		finder := &discovery.Finder{
			APIURL:            conf.GitHub.APIURL,
			ApprovalLabel:     conf.GitHub.ApprovalLabel,
			DoneLabel:         conf.GitHub.DoneLabel,
			AuthorizedUsers:   conf.GitHub.AuthorizedUsers,
			LookupConcurrency: conf.GitHub.LookupConcurrency,
			Log:               log,
		}
		if len(finder.AuthorizedUsers) == 0 {
			log.Warn("No authorized users configured, no request will ever be approved")
		}

		pipeline := &simsched.Pipeline{
			Discoverer: finder,
			Executor:   executor,
			Log:        log,
		}

		token := viper.GetString("token")
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		creds := simsched.Credentials{Token: token}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runOnce := func() bool {
			summary := pipeline.Run(ctx, repo, creds)
			reportSummary(log, summary)

			if shouldMarkDone(ctx, conf.GitHub.MarkDone, backend, summary) {
				if err := finder.MarkDone(context.WithoutCancel(ctx), repo, creds, summary.IssueID); err != nil {
					log.Errorf("Failed to mark issue %d as done - %v", summary.IssueID, err)
				}
			}
			return summary.Err() == nil
		}

		every := viper.GetDuration("every")
		if every <= 0 {
			if !runOnce() {
				os.Exit(1)
			}
			return
		}

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			runOnce()
			select {
			case <-ctx.Done():
				log.Info("Stopping...")
				return
			case <-ticker.C:
			}
		}
	},
}

// newExecutor returns the executor of the given backend and a function releasing its resources
func newExecutor(backend string, conf *config.Config, log *logrus.Logger) (simsched.JobExecutor, func()) {
	switch backend {
	case config.BackendDryRun:
		return &deploy.DryRunExecutor{Log: log}, func() {}
	case config.BackendDocker:
		executor := &deploy.DockerExecutor{
			RestPort: conf.Docker.RestPort,
			Label:    conf.Docker.Label,
			Log:      log,
		}
		if h := conf.Docker.Healthcheck; h.Enabled {
			executor.Healthcheck = &deploy.Healthcheck{
				Path:             h.Path,
				Retries:          h.Retries,
				Backoff:          h.Backoff,
				BackoffIncrement: h.BackoffIncrement,
				MaxBackoff:       h.MaxBackoff,
			}
		}
		return executor, func() {
			if err := executor.Close(); err != nil {
				log.Warnf("Failed to close docker client - %v", err)
			}
		}
	default:
		executor := &deploy.HelmExecutor{
			Chart:     conf.Helm.Chart,
			Namespace: conf.Helm.Namespace,
			ValuesDir: conf.Helm.ValuesDir,
			Helm:      conf.Helm.Binary,
			Kubectl:   conf.Helm.KubectlBinary,
			Log:       log,
		}
		if conf.Analysis.Enabled {
			executor.Analyzer = &deploy.Analyzer{
				ToolkitDir: conf.Analysis.ToolkitDir,
				WorkDir:    conf.Analysis.WorkDir,
				Python:     conf.Analysis.Python,
				Log:        log,
			}
		}
		return executor, func() {}
	}
}

// shouldMarkDone reports whether the issue of summary gets the done label.
// Runs which were interrupted are left unlabelled so they get picked up again.
// Failed configurations still mark the issue, their failures are reported in the run's output.
func shouldMarkDone(ctx context.Context, markDone bool, backend string, summary simsched.Summary) bool {
	if !markDone || !summary.Found || backend == config.BackendDryRun {
		return false
	}
	return ctx.Err() == nil
}

func reportSummary(log *logrus.Logger, summary simsched.Summary) {
	if !summary.Found {
		return
	}

	failed := summary.Failed()
	log.Warnf("Issue %d: %d of %d configurations succeeded", summary.IssueID, len(summary.Results)-len(failed), len(summary.Results))
	for _, r := range summary.Results {
		entry := log.WithField("release", r.Config.ReleaseName())
		if r.Outcome.OK() {
			entry.Infof("Configuration %d %s", r.Index, r.Outcome.Status)
		} else {
			entry.Errorf("Configuration %d %s - %v", r.Index, r.Outcome.Status, r.Outcome.Err)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("token", "", "GitHub token used to read and label issues")
	runCmd.Flags().Duration("every", 0, "Check the repository again after this interval, 0 runs once")
	runCmd.Flags().Bool("dry-run", false, "Only log the configurations instead of running them")

	viper.BindPFlag("token", runCmd.Flags().Lookup("token"))
	viper.BindPFlag("every", runCmd.Flags().Lookup("every"))
	viper.BindPFlag("dry-run", runCmd.Flags().Lookup("dry-run"))
}
