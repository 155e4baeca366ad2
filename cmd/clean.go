package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanRelease string
var cleanAgree bool

var cleanCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Remove all containers left behind by the docker backend",
	Long: `This command removes all containers started by the docker backend, both running and stopped.
Containers are found through the label configured under docker.label.

Pass --release to only remove the containers of a single configuration, e.g. waku-50x-5m-0.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()
		log := newLogger()

		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			logrus.Fatalf("Couldn't create docker client - %v", err)
		}
		defer cli.Close()

		filter := filters.NewArgs(filters.KeyValuePair{
			Key:   "label",
			Value: conf.Docker.Label + "=1",
		})
		if cleanRelease != "" {
			filter.Add("label", fmt.Sprintf("%s.release=%s", conf.Docker.Label, cleanRelease))
		}

		containers, err := cli.ContainerList(context.Background(), container.ListOptions{
			All:     true,
			Filters: filter,
		})
		if err != nil {
			logrus.Fatalf("Couldn't list docker containers - %v", err)
		}

		if len(containers) == 0 {
			logrus.Info("No containers to remove. Exiting...")
			return
		}

		logrus.Infof("About to delete %d containers.", len(containers))

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !cleanAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				os.Exit(0)
			}
		}

		for _, c := range containers {
			name := c.ID
			if len(c.Names) > 0 {
				name = c.Names[0][1:]
			}
			log.Infof("Deleting container %s (release: %s)", name, c.Labels[conf.Docker.Label+".release"])
			if err := cli.ContainerRemove(context.Background(), c.ID, container.RemoveOptions{Force: true}); err != nil {
				logrus.Fatalf("Failed to remove container with ID %s - %v", c.ID, err)
			}
		}

		logrus.Info("Done cleaning up.")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().StringVarP(&cleanRelease, "release", "r", "", "Only delete the containers of this release")
	cleanCmd.Flags().BoolVarP(&cleanAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
