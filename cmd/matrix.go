package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vacp2p/simsched/pkg/simsched"
	"gopkg.in/yaml.v3"
)

var matrixIssue int

var matrixCmd = &cobra.Command{
	Use:   "matrix [request.md]",
	Short: "Print the configurations a request body expands to",
	Long: `Print the configurations a request body expands to, in yaml format.

The request body is read from the passed file, or from stdin if no file is passed.
Configurations are printed in the order they would be started in.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var r io.Reader = os.Stdin
		if len(args) == 1 {
			file, err := os.Open(args[0])
			if err != nil {
				logrus.Fatalf("Failed to open request body - %v", err)
			}
			defer file.Close()
			r = file
		}

		body, err := io.ReadAll(r)
		if err != nil {
			logrus.Fatalf("Failed to read request body - %v", err)
		}

		matrix := (&simsched.Expander{Log: newLogger()}).Expand(simsched.ParseForm(string(body)), matrixIssue)

		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent(2)
		defer encoder.Close()
		if err := encoder.Encode(matrix); err != nil {
			logrus.Fatalf("Failed to print matrix - %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(matrixCmd)

	matrixCmd.Flags().IntVarP(&matrixIssue, "issue", "i", 0, "The issue number the configurations are tagged with")
}
