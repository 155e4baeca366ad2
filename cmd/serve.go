package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vacp2p/simsched/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a server previewing the configurations of request bodies",
	Long: `Start a server previewing the configurations of request bodies.

POST a request body to /matrix (optionally with ?issue=<number>) to get the configurations it expands to as JSON.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()
		port := conf.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		log := newLogger()
		if _, err := server.NewServer(server.HTTP, port, log); err != nil {
			logrus.Fatalf("Failed to start webserver - %v", err)
		}
		log.Infof("Serving previews on localhost:%d", port)

		select {}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 40033, "The port on which to start the server")
}
