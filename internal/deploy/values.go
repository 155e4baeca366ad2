package deploy

import (
	"strings"

	"github.com/vacp2p/simsched/pkg/simsched"
	"gopkg.in/yaml.v3"
)

type resourceList struct {
	Memory string `yaml:"memory"`
	CPU    string `yaml:"cpu"`
}

type resources struct {
	Requests resourceList `yaml:"requests"`
	Limits   resourceList `yaml:"limits"`
}

type imageValues struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag"`
	PullPolicy string `yaml:"pullPolicy,omitempty"`
}

type workloadValues struct {
	Command   []string  `yaml:"command"`
	Resources resources `yaml:"resources"`
}

type publisherValues struct {
	Enabled      bool        `yaml:"enabled"`
	Image        imageValues `yaml:"image"`
	MessageSize  int         `yaml:"messageSize"`
	DelaySeconds int         `yaml:"delaySeconds"`
	MessageCount int         `yaml:"messageCount"`
	StartDelay   struct {
		Enabled bool `yaml:"enabled"`
		Minutes int  `yaml:"minutes"`
	} `yaml:"startDelay"`
	WaitForStatefulSet struct {
		Enabled          bool `yaml:"enabled"`
		StabilityMinutes int  `yaml:"stabilityMinutes"`
	} `yaml:"waitForStatefulSet"`
}

// chartValues are the values passed to the waku helm chart
type chartValues struct {
	Global struct {
		PubSubTopic string `yaml:"pubSubTopic"`
	} `yaml:"global"`
	ReplicaCount struct {
		Bootstrap int `yaml:"bootstrap"`
		Nodes     int `yaml:"nodes"`
	} `yaml:"replicaCount"`
	Image             imageValues     `yaml:"image"`
	Bootstrap         workloadValues  `yaml:"bootstrap"`
	Nodes             workloadValues  `yaml:"nodes"`
	Publisher         publisherValues `yaml:"publisher"`
	ArtificialLatency struct {
		Enabled   bool `yaml:"enabled"`
		LatencyMs int  `yaml:"latencyMs"`
	} `yaml:"artificialLatency"`
}

// splitImage splits an image reference into repository and tag. The tag defaults to latest.
func splitImage(ref string) (string, string) {
	colon := strings.LastIndex(ref, ":")
	if colon <= strings.LastIndex(ref, "/") {
		// Registry port, not a tag
		return ref, "latest"
	}
	if colon == len(ref)-1 {
		return ref[:colon], "latest"
	}
	return ref[:colon], ref[colon+1:]
}

func newChartValues(config simsched.RunConfiguration) chartValues {
	var v chartValues

	v.Global.PubSubTopic = config.PubsubTopic

	v.ReplicaCount.Bootstrap = config.BootstrapNodes
	v.ReplicaCount.Nodes = config.NodeCount

	repository, tag := splitImage(config.Image)
	v.Image = imageValues{Repository: repository, Tag: tag, PullPolicy: "IfNotPresent"}

	v.Bootstrap = workloadValues{
		Command: nonNil(config.BootstrapCommand),
		Resources: resources{
			Requests: resourceList{Memory: "64Mi", CPU: "50m"},
			Limits:   resourceList{Memory: "768Mi", CPU: "400m"},
		},
	}
	v.Nodes = workloadValues{
		Command: nonNil(config.NodeCommand),
		Resources: resources{
			Requests: resourceList{Memory: "64Mi", CPU: "150m"},
			Limits:   resourceList{Memory: "600Mi", CPU: "500m"},
		},
	}

	v.Publisher = publisherValues{
		Enabled:      config.Publisher.Enabled,
		Image:        imageValues{Repository: "zorlin/publisher", Tag: "v0.5.0"},
		MessageSize:  config.Publisher.MessageSize,
		DelaySeconds: config.Publisher.Delay,
		MessageCount: config.Publisher.MessageCount,
	}
	v.Publisher.StartDelay.Minutes = 5
	v.Publisher.WaitForStatefulSet.Enabled = true
	v.Publisher.WaitForStatefulSet.StabilityMinutes = 1

	v.ArtificialLatency.Enabled = config.ArtificialLatency.Enabled
	v.ArtificialLatency.LatencyMs = config.ArtificialLatency.LatencyMs

	return v
}

// RenderValues returns the helm values of a configuration in yaml format
func RenderValues(config simsched.RunConfiguration) ([]byte, error) {
	return yaml.Marshal(newChartValues(config))
}

// nonNil makes sure empty commands are rendered as an empty list instead of null
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
