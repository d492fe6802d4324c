package config

import "fmt"

// NodeErr formats an error, prefixing it with node's file:line when known
// (directive blocks parsed from a file); used by Map.MatchErr and by
// mapper callbacks that need to report a location-aware error directly.
func NodeErr(node *Node, f string, args ...interface{}) error {
	if node.File == "" {
		return fmt.Errorf(f, args...)
	}
	return fmt.Errorf("%s:%d: %s", node.File, node.Line, fmt.Sprintf(f, args...))
}
