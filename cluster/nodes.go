// Package cluster resolves the set of nodes a deployment runs on:
// explicit CLI input first, then the cached .env configuration, then
// interactive auto-discovery
package cluster

import "strings"

// ParseNodes splits a comma-separated node list, trimming whitespace
// and dropping empty entries. The first node is the head node.
func ParseNodes(nodesArg string) []string {
	if nodesArg == "" {
		return nil
	}
	var nodes []string
	for _, n := range strings.Split(nodesArg, ",") {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// WorkerNodes returns all nodes except the head, empty for a single
// node or none.
func WorkerNodes(nodes []string) []string {
	if len(nodes) <= 1 {
		return nil
	}
	return nodes[1:]
}

// IsCluster reports whether the node list spans more than one machine
func IsCluster(nodes []string) bool {
	return len(nodes) > 1
}
