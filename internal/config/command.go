package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandLine is a program and its arguments. In YAML it may be written as a
// plain string ("python3 extract.py") or as a sequence of words.
type CommandLine []string

// UnmarshalYAML handles both scalar strings and sequence nodes.
func (c *CommandLine) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(value.Value)
		return nil
	case yaml.SequenceNode:
		var words []string
		if err := value.Decode(&words); err != nil {
			return err
		}
		*c = words
		return nil
	default:
		return &yaml.TypeError{Errors: []string{"command: expected string or sequence"}}
	}
}

// String joins the words back for display.
func (c CommandLine) String() string {
	return strings.Join(c, " ")
}
