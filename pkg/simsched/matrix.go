package simsched

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Field titles of a simulation request, as written by the issue form
const (
	FieldNodeCount             = "Number of nodes"
	FieldDuration              = "Duration"
	FieldParallelism           = "Parallelism"
	FieldBootstrapNodes        = "Bootstrap nodes"
	FieldPubsubTopic           = "PubSub Topic"
	FieldPublisherEnabled      = "Enable Publisher"
	FieldPublisherMessageSize  = "Publisher Message Size"
	FieldPublisherDelay        = "Publisher Delay"
	FieldPublisherMessageCount = "Publisher Message Count"
	FieldLatencyEnabled        = "Enable Artificial Latency"
	FieldLatencyMs             = "Artificial Latency (ms)"
	FieldNodeCommand           = "Nodes Command"
	FieldBootstrapCommand      = "Bootstrap Command"
	FieldImage                 = "Docker image"
)

const (
	// TopicPrefix is the prefix every accepted pubsub topic must have
	TopicPrefix = "/waku/2/rs"
	// DefaultTopic replaces pubsub topics which are missing or malformed
	DefaultTopic = "/waku/2/rs/2/0"
	// DefaultImage is the node image used when the request names none
	DefaultImage = "statusteam/nim-waku:latest"
)

// PublisherConfig configures the message publisher running alongside the nodes
type PublisherConfig struct {
	Enabled      bool `yaml:"enabled" json:"enabled"`
	MessageSize  int  `yaml:"messageSize" json:"messageSize"`   // Size of each message in KB
	Delay        int  `yaml:"delay" json:"delay"`               // Seconds between two messages
	MessageCount int  `yaml:"messageCount" json:"messageCount"` // Total amount of messages to publish
}

// LatencyConfig configures artificial network latency between nodes
type LatencyConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	LatencyMs int  `yaml:"latencyMs" json:"latencyMs"`
}

// RunConfiguration is one concrete simulation to be run.
// Every RunConfiguration of a [Matrix] shares all values except NodeCount, Duration and Index.
type RunConfiguration struct {
	Index   int `yaml:"index" json:"index"`     // Position in the matrix, which is also the dispatch order
	IssueID int `yaml:"issueId" json:"issueId"` // The issue which requested this run

	NodeCount      int    `yaml:"nodeCount" json:"nodeCount"`
	Duration       int    `yaml:"duration" json:"duration"` // Run time in minutes
	BootstrapNodes int    `yaml:"bootstrapNodes" json:"bootstrapNodes"`
	Image          string `yaml:"image" json:"image"`
	PubsubTopic    string `yaml:"pubsubTopic" json:"pubsubTopic"`

	Publisher         PublisherConfig `yaml:"publisher" json:"publisher"`
	ArtificialLatency LatencyConfig   `yaml:"artificialLatency" json:"artificialLatency"`

	NodeCommand      []string `yaml:"nodeCommand" json:"nodeCommand"`
	BootstrapCommand []string `yaml:"bootstrapCommand" json:"bootstrapCommand"`

	ParallelLimit int `yaml:"parallelLimit" json:"parallelLimit"`
}

// ReleaseName returns the name under which this configuration gets deployed
func (c RunConfiguration) ReleaseName() string {
	return fmt.Sprintf("waku-%dx-%dm-%d", c.NodeCount, c.Duration, c.Index)
}

// Digest returns a digest of the configuration, which is identical for identical configurations
func (c RunConfiguration) Digest() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		// Only plain fields, marshalling cannot fail
		panic(err)
	}
	return digest.FromBytes(out).Encoded()
}

// Matrix is the ordered list of configurations requested by one issue
type Matrix []RunConfiguration

// ParallelLimit returns the amount of configurations which may run at once
func (m Matrix) ParallelLimit() int {
	if len(m) == 0 {
		return 1
	}
	return m[0].ParallelLimit
}

// Expander turns the parameters of a request into a [Matrix]
type Expander struct {
	Log *logrus.Logger // The log to which diagnostic notes get printed to
}

// Expand resolves every field of params and returns the cartesian product of all node counts and durations.
// Node counts are iterated in the outer loop, durations in the inner one.
func (e *Expander) Expand(params ParameterSet, issueID int) Matrix {
	log := e.Log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	nodeCounts := params.IntList(FieldNodeCount, "50")
	durations := params.IntList(FieldDuration, "5")

	parallelLimit := 1
	if parallelism := params.IntList(FieldParallelism, "1"); len(parallelism) > 0 {
		parallelLimit = parallelism[0]
	}

	topic := params.Text(FieldPubsubTopic, "")
	if !strings.HasPrefix(topic, TopicPrefix) {
		log.Warnf("Using default pubsub topic %s because the provided value %q was invalid or missing", DefaultTopic, topic)
		topic = DefaultTopic
	} else {
		log.Infof("Using provided pubsub topic %s", topic)
	}

	base := RunConfiguration{
		IssueID: issueID,

		BootstrapNodes: params.Int(FieldBootstrapNodes, 3),
		Image:          params.Text(FieldImage, DefaultImage),
		PubsubTopic:    topic,

		Publisher: PublisherConfig{
			Enabled:      params.Bool(FieldPublisherEnabled, false),
			MessageSize:  params.Int(FieldPublisherMessageSize, 1),
			Delay:        params.Int(FieldPublisherDelay, 10),
			MessageCount: params.Int(FieldPublisherMessageCount, 1000),
		},
		ArtificialLatency: LatencyConfig{
			Enabled:   params.Bool(FieldLatencyEnabled, false),
			LatencyMs: params.Int(FieldLatencyMs, 50),
		},

		NodeCommand:      SplitCommand(params.Text(FieldNodeCommand, "")),
		BootstrapCommand: SplitCommand(params.Text(FieldBootstrapCommand, "")),

		ParallelLimit: parallelLimit,
	}

	matrix := make(Matrix, 0, len(nodeCounts)*len(durations))
	for _, n := range nodeCounts {
		for _, d := range durations {
			config := base
			config.Index = len(matrix)
			config.NodeCount = n
			config.Duration = d
			config.NodeCommand = slices.Clone(base.NodeCommand)
			config.BootstrapCommand = slices.Clone(base.BootstrapCommand)
			matrix = append(matrix, config)
		}
	}

	log.Infof("Expanded issue %d into %d configurations with a parallelism of %d", issueID, len(matrix), parallelLimit)

	return matrix
}
