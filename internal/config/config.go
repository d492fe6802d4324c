// Package config adapts maddy's framework/config directive-tree binder
// ("github.com/foxcpp/exmdb/config", kept at the workspace root the same
// way the teacher keeps its generic parser) to the options this engine's
// DB-handle cache and storage layer need (spec SPEC_FULL.md "Ambient
// stack... Configuration").
package config

import (
	"fmt"

	cfg "github.com/foxcpp/exmdb/config"
)

type (
	Node = cfg.Node
	Map  = cfg.Map
)

func NodeErr(node Node, f string, args ...interface{}) error {
	if node.File == "" {
		return fmt.Errorf(f, args...)
	}
	return fmt.Errorf("%s:%d: %s", node.File, node.Line, fmt.Sprintf(f, args...))
}
