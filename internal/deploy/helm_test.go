package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vacp2p/simsched/pkg/simsched"
	"gopkg.in/yaml.v3"
)

// fakeRunner records every command and fails those whose command line contains a key of fail
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	dirs     []string
	fail     map[string]error
}

func (r *fakeRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := strings.Join(append([]string{name}, args...), " ")
	r.commands = append(r.commands, line)
	r.dirs = append(r.dirs, dir)
	for key, err := range r.fail {
		if strings.Contains(line, key) {
			return []byte("output of " + line), err
		}
	}
	return []byte("output of " + line), nil
}

func (r *fakeRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func testConfig() simsched.RunConfiguration {
	return simsched.RunConfiguration{
		Index:          1,
		IssueID:        3,
		NodeCount:      10,
		Duration:       2,
		BootstrapNodes: 3,
		Image:          "wakuorg/nwaku:v0.30.0",
		PubsubTopic:    simsched.DefaultTopic,
		Publisher:      simsched.PublisherConfig{Enabled: true, MessageSize: 1, Delay: 10, MessageCount: 1000},
		NodeCommand:    []string{"--relay=true"},
		ParallelLimit:  1,
	}
}

func TestHelmExecutor(t *testing.T) {
	t.Run("Successful run", func(t *testing.T) {
		runner := &fakeRunner{fail: map[string]error{"kubectl": errors.New("namespace exists")}}
		dir := t.TempDir()
		exec := &HelmExecutor{
			Chart:     "waku.tgz",
			Namespace: "zerotesting",
			ValuesDir: dir,
			Runner:    runner,
			Minute:    time.Millisecond,
		}

		handle, err := exec.Start(context.Background(), testConfig())
		require.NoError(t, err, "Start returned an error")

		outcome := handle.Wait(context.Background())
		assert.True(t, outcome.OK(), "Job failed: %v", outcome.Err)

		valuesFile := filepath.Join(dir, "values-waku-10x-2m-1.yaml")
		assert.Equal(t, []string{
			"kubectl create namespace zerotesting",
			"helm upgrade --install waku-10x-2m-1 waku.tgz -f " + valuesFile + " --namespace zerotesting",
			"helm uninstall waku-10x-2m-1 --namespace zerotesting",
		}, runner.Commands())

		_, err = os.Stat(valuesFile)
		assert.Nil(t, err, "Values file was not written")
	})
	t.Run("Failing install is a submission failure", func(t *testing.T) {
		runner := &fakeRunner{fail: map[string]error{"upgrade --install": errors.New("exit status 1")}}
		exec := &HelmExecutor{ValuesDir: t.TempDir(), Runner: runner, Minute: time.Millisecond}

		handle, err := exec.Start(context.Background(), testConfig())

		assert.Nil(t, handle)
		assert.ErrorContains(t, err, "helm install of waku-10x-2m-1 failed")
		for _, cmd := range runner.Commands() {
			assert.NotContains(t, cmd, "helm uninstall", "Release which was never installed got uninstalled")
		}
	})
	t.Run("Failing uninstall does not fail the job", func(t *testing.T) {
		runner := &fakeRunner{fail: map[string]error{"helm uninstall": errors.New("release not found")}}
		exec := &HelmExecutor{ValuesDir: t.TempDir(), Runner: runner, Minute: time.Millisecond}

		handle, err := exec.Start(context.Background(), testConfig())
		require.NoError(t, err, "Start failed although only the uninstall fails")

		assert.True(t, handle.Wait(context.Background()).OK())
		commands := runner.Commands()
		assert.Contains(t, commands[len(commands)-1], "helm uninstall")
	})
	t.Run("Cancelled run is cleaned up and fails", func(t *testing.T) {
		runner := &fakeRunner{}
		exec := &HelmExecutor{ValuesDir: t.TempDir(), Runner: runner, Minute: time.Hour}

		ctx, cancel := context.WithCancel(context.Background())
		handle, err := exec.Start(ctx, testConfig())
		require.NoError(t, err)
		cancel()

		outcome := handle.Wait(context.Background())
		assert.ErrorIs(t, outcome.Err, simsched.ErrJobFailed)
		assert.ErrorIs(t, outcome.Err, context.Canceled)
		commands := runner.Commands()
		assert.Contains(t, commands[len(commands)-1], "helm uninstall", "Cancelled release was not uninstalled")
	})
	t.Run("Analysis runs after cleanup", func(t *testing.T) {
		runner := &fakeRunner{}
		toolkit := t.TempDir()
		assert.Nil(t, os.WriteFile(filepath.Join(toolkit, "requirements.txt"), []byte("pandas"), 0644))
		work := t.TempDir()
		exec := &HelmExecutor{
			ValuesDir: t.TempDir(),
			Runner:    runner,
			Minute:    time.Millisecond,
			Analyzer:  &Analyzer{ToolkitDir: toolkit, WorkDir: work, Python: "python3", Runner: runner},
		}

		handle, err := exec.Start(context.Background(), testConfig())
		require.NoError(t, err)
		assert.True(t, handle.Wait(context.Background()).OK())

		commands := runner.Commands()
		assert.Equal(t, "python3 analyse_waku-10x-2m-1.py", commands[len(commands)-1])
		assert.Contains(t, commands[len(commands)-2], "helm uninstall")
	})
}

func TestRenderValues(t *testing.T) {
	out, err := RenderValues(testConfig())
	assert.Nil(t, err, "RenderValues returned an error")

	var values map[string]any
	assert.Nil(t, yaml.Unmarshal(out, &values))

	assert.Equal(t, map[string]any{"pubSubTopic": simsched.DefaultTopic}, values["global"])
	assert.Equal(t, map[string]any{"bootstrap": 3, "nodes": 10}, values["replicaCount"])
	assert.Equal(t, map[string]any{"repository": "wakuorg/nwaku", "tag": "v0.30.0", "pullPolicy": "IfNotPresent"}, values["image"])
	assert.Equal(t, []any{"--relay=true"}, values["nodes"].(map[string]any)["command"])
	assert.Equal(t, []any{}, values["bootstrap"].(map[string]any)["command"])

	publisher := values["publisher"].(map[string]any)
	assert.Equal(t, true, publisher["enabled"])
	assert.Equal(t, 10, publisher["delaySeconds"])
	assert.Equal(t, 1000, publisher["messageCount"])

	assert.Equal(t, map[string]any{"enabled": false, "latencyMs": 0}, values["artificialLatency"])
}

func TestSplitImage(t *testing.T) {
	values := []struct {
		ref        string
		repository string
		tag        string
	}{
		{"statusteam/nim-waku:latest", "statusteam/nim-waku", "latest"},
		{"wakuorg/nwaku:v0.30.0", "wakuorg/nwaku", "v0.30.0"},
		{"wakuorg/nwaku", "wakuorg/nwaku", "latest"},
		{"wakuorg/nwaku:", "wakuorg/nwaku", "latest"},
		{"localhost:5000/nwaku", "localhost:5000/nwaku", "latest"},
		{"localhost:5000/nwaku:dev", "localhost:5000/nwaku", "dev"},
	}

	for _, v := range values {
		repository, tag := splitImage(v.ref)
		assert.Equalf(t, v.repository, repository, "Wrong repository for %s", v.ref)
		assert.Equalf(t, v.tag, tag, "Wrong tag for %s", v.ref)
	}
}

func TestRunFor(t *testing.T) {
	t.Run("Waits", func(t *testing.T) {
		start := time.Now()
		err := runFor(context.Background(), testLog(), 3, 10*time.Millisecond)
		assert.Nil(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})
	t.Run("Zero minutes returns right away", func(t *testing.T) {
		assert.Nil(t, runFor(context.Background(), testLog(), 0, time.Hour))
	})
	t.Run("Cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, runFor(ctx, testLog(), 5, time.Hour), context.Canceled)
	})
}
