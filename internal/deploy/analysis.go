package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02T15:04:05"

var analysisScript = template.Must(template.New("analysis").Parse(`# Python Imports

# Project Imports
import src.logger.logger
from src.mesh_analysis.waku_message_log_analyzer import WakuMessageLogAnalyzer


if __name__ == '__main__':
    # Timestamp of the simulation
    timestamp = "[{{ .Start }}, {{ .End }}]"
    stateful_sets = ["bootstrap", "nodes"]
    log_analyzer = WakuMessageLogAnalyzer(stateful_sets, timestamp, dump_analysis_dir='local_data/{{ .Release }}/')

    log_analyzer.analyze_message_logs(True)
    log_analyzer.check_store_messages()
    log_analyzer.analyze_message_timestamps(time_difference_threshold=2)
`))

// Analyzer runs the message log analysis of a finished release
type Analyzer struct {
	ToolkitDir string // Local checkout of the analysis toolkit, copied next to every generated script
	WorkDir    string // Directory under which a work directory per release is created
	Python     string // The python interpreter

	Runner CommandRunner // Runs the python interpreter. Defaults to [ExecRunner]

	Log *logrus.Logger // The log to which information gets printed to
}

// Script returns the analysis script of a release which ran between start and end
func Script(release string, start, end time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := analysisScript.Execute(&buf, struct {
		Release    string
		Start, End string
	}{
		Release: release,
		Start:   start.Format(timestampLayout),
		End:     end.Format(timestampLayout),
	})
	return buf.Bytes(), err
}

// Analyze generates the analysis script of a release in its own work directory and runs it
func (a *Analyzer) Analyze(ctx context.Context, release string, start, end time.Time) error {
	// Called concurrently by running jobs, a must not be written
	logger := a.Log
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	var runner CommandRunner = ExecRunner{}
	if a.Runner != nil {
		runner = a.Runner
	}
	python := a.Python
	if python == "" {
		python = "python3"
	}
	log := logger.WithField("release", release)

	dir := filepath.Join(a.WorkDir, release)
	if a.ToolkitDir != "" {
		log.Debugf("Copying analysis toolkit %s to %s", a.ToolkitDir, dir)
		if err := copy.Copy(a.ToolkitDir, dir, copy.Options{
			Skip: func(info os.FileInfo, src, dest string) (bool, error) {
				return info.IsDir() && info.Name() == ".git", nil
			},
		}); err != nil {
			return errors.Join(fmt.Errorf("failed to copy analysis toolkit %s to %s", a.ToolkitDir, dir), err)
		}
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	script, err := Script(release, start, end)
	if err != nil {
		return err
	}
	scriptName := fmt.Sprintf("analyse_%s.py", release)
	if err := os.WriteFile(filepath.Join(dir, scriptName), script, 0644); err != nil {
		return errors.Join(fmt.Errorf("failed to write analysis script of %s", release), err)
	}
	log.Infof("Analysis script generated at %s", filepath.Join(dir, scriptName))

	if a.ToolkitDir == "" {
		log.Warn("No analysis toolkit configured, skipping analysis run")
		return nil
	}

	out, err := runner.Run(ctx, dir, python, scriptName)
	if err != nil {
		return errors.Join(fmt.Errorf("analysis script of %s failed, output: %s", release, out), err)
	}
	log.Infof("Analysis complete. Output:\n%s", out)

	return nil
}
