package simsched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const exampleBody = `Some introduction which is ignored

### Number of nodes

10, 20

### Duration

5

### Parallelism

1

### PubSub Topic

_No response_

### Enable Publisher

Yes
`

func TestParseForm(t *testing.T) {
	t.Run("Sections are split on headers", func(t *testing.T) {
		params := ParseForm(exampleBody)

		assert.Equal(t, ParameterSet{
			"Number of nodes":  "\n10, 20",
			"Duration":         "\n5",
			"Parallelism":      "\n1",
			"PubSub Topic":     "\n_No response_",
			"Enable Publisher": "\nYes",
		}, params, "Wrong parameter set")
	})
	t.Run("Parsing is idempotent", func(t *testing.T) {
		assert.Equal(t, ParseForm(exampleBody), ParseForm(exampleBody), "Parsing the same body twice differed")
	})
	t.Run("Carriage returns are stripped", func(t *testing.T) {
		params := ParseForm("### Duration \r\n\r\n7\r\n")

		assert.Equal(t, "7", params.Text(FieldDuration, ""), "Wrong value")
	})
	t.Run("Repeated header starts over", func(t *testing.T) {
		params := ParseForm("### Duration\n1\n### Duration\n2\n")

		assert.Equal(t, "2", params["Duration"], "Repeated section was not reset")
	})
	t.Run("Body without headers is empty", func(t *testing.T) {
		assert.Empty(t, ParseForm("no\nheaders\nhere"), "Expected empty parameter set")
		assert.Empty(t, ParseForm(""), "Expected empty parameter set")
	})
	t.Run("Empty section is present", func(t *testing.T) {
		params := ParseForm("### Docker image\n### Duration\n3")

		value, ok := params["Docker image"]
		assert.True(t, ok, "Empty section missing")
		assert.Equal(t, "", value, "Empty section has content")
	})
	t.Run("Header without title is dropped", func(t *testing.T) {
		params := ParseForm("### Duration\n7\n### \nstray\n###\n### Parallelism\n2\n")

		assert.Equal(t, ParameterSet{"Duration": "7", "Parallelism": "2"}, params)
	})
}

func TestClassifyLine(t *testing.T) {
	values := []struct {
		line  string
		kind  lineKind
		title string
	}{
		{"### Duration", headerLine, "Duration"},
		{"###   Artificial Latency (ms)  ", headerLine, "Artificial Latency (ms)"},
		{"## Duration", bodyLine, ""},
		{"####Duration", bodyLine, ""},
		{"10, 20", bodyLine, ""},
		{"", bodyLine, ""},
	}

	for _, v := range values {
		kind, title := classifyLine(v.line)
		assert.Equalf(t, v.kind, kind, "Wrong line kind for %q", v.line)
		assert.Equalf(t, v.title, title, "Wrong title for %q", v.line)
	}
}

func TestFieldResolution(t *testing.T) {
	params := ParameterSet{
		"empty":    "  ",
		"none":     "\n_No response_\n",
		"text":     "  some text\n",
		"list":     "10, abc, -5, 20,,3",
		"badList":  "abc, -1",
		"int":      " 42 ",
		"negative": "-7",
		"badInt":   "4.2",
		"yes":      "YeS",
		"no":       "no",
		"maybe":    "maybe",
	}

	t.Run("Text", func(t *testing.T) {
		assert.Equal(t, "def", params.Text("missing", "def"))
		assert.Equal(t, "def", params.Text("empty", "def"))
		assert.Equal(t, "def", params.Text("none", "def"))
		assert.Equal(t, "some text", params.Text("text", "def"))
	})
	t.Run("IntList", func(t *testing.T) {
		assert.Equal(t, []int{10, 20, 3}, params.IntList("list", "1"))
		assert.Equal(t, []int{50}, params.IntList("badList", "50"))
		assert.Equal(t, []int{5, 6}, params.IntList("missing", "5,6"))
		assert.Empty(t, params.IntList("badList", "x"))
	})
	t.Run("Int", func(t *testing.T) {
		assert.Equal(t, 42, params.Int("int", 1))
		assert.Equal(t, -7, params.Int("negative", 1))
		assert.Equal(t, 1, params.Int("badInt", 1))
		assert.Equal(t, 3, params.Int("none", 3))
		assert.Equal(t, 3, params.Int("missing", 3))
	})
	t.Run("Bool", func(t *testing.T) {
		assert.True(t, params.Bool("yes", false))
		assert.False(t, params.Bool("no", true))
		assert.False(t, params.Bool("maybe", false))
		assert.True(t, params.Bool("maybe", true))
		assert.False(t, params.Bool("none", false))
		assert.False(t, params.Bool("missing", false))
	})
}

func TestSplitCommand(t *testing.T) {
	values := []struct {
		cmd    string
		tokens []string
	}{
		{"", nil},
		{"   ", nil},
		{"--relay=true --max-connections=150", []string{"--relay=true", "--max-connections=150"}},
		{"--nat=extip:{{ .PodIP }}  --rest", []string{"--nat=extip:{{ .PodIP }}", "--rest"}},
		{"{{ a b }}\t{{c}}", []string{"{{ a b }}", "{{c}}"}},
	}

	for _, v := range values {
		assert.Equalf(t, v.tokens, SplitCommand(v.cmd), "Wrong tokens for %q", v.cmd)
	}
}
