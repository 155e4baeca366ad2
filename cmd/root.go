package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vacp2p/simsched/internal/config"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	cfgFile   string
	verbosity int
	quiet     bool
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "simsched",
	Short: "Schedule waku network simulations requested through GitHub issues",
	Long: `simsched looks for approved simulation requests in the issues of a GitHub repository,
expands every request into the matrix of configurations it asks for and runs them,
with at most as many simulations running at once as the request allows.

Persistent config can be saved in a yaml file passed with --config.
Every flag can also be set through an environment variable prefixed with SIMSCHED_, e.g. SIMSCHED_TOKEN.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity, can be repeated")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not log anything")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored log output")
}

func initConfig() {
	viper.SetEnvPrefix("simsched")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// newLogger returns a logger configured by the verbosity flags
func newLogger() *logrus.Logger {
	log := logrus.New()

	formatter := prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	if noColor {
		formatter.DisableColors = true
	}
	log.SetFormatter(&formatter)

	// Set logger verbosity
	if quiet {
		log.SetOutput(io.Discard)
	} else if verbosity == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if verbosity == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if verbosity == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}

	return log
}

// loadConfig loads the config passed with --config, or the default config
func loadConfig() *config.Config {
	conf, err := config.Load(cfgFile)
	if err != nil {
		logrus.Fatalf("Failed to load config - %v", err)
	}
	return conf
}
