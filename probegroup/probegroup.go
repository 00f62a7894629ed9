// Package probegroup implements ProbeGroup: a binary tree of scheduled
// probes keyed by minimum next-delay, used by the network layer to
// know which probe(s) are due to fire next without rescanning every
// flying probe on each tick.
package probegroup

import "github.com/probeweave/probeengine/probe"

// node is either an interior node (delay mirrors the min of its two
// children) or a leaf (delay is the leaf's own probe's next delay).
type node struct {
	delay    float64
	probe    *probe.Probe // non-nil only on a leaf
	parent   *node
	children [2]*node // nil, nil on a leaf
}

func (n *node) isLeaf() bool {
	return n.children[0] == nil && n.children[1] == nil
}

// ProbeGroup is a scheduling tree: its Root's delay is the smallest
// delay over every leaf (probe) currently inserted.
type ProbeGroup struct {
	root  *node
	leafOf map[*probe.Probe]*node
}

// New returns an empty ProbeGroup.
func New() *ProbeGroup {
	return &ProbeGroup{leafOf: make(map[*probe.Probe]*node)}
}

// Empty reports whether the group has no probes.
func (g *ProbeGroup) Empty() bool {
	return g.root == nil
}

// RootDelay returns the minimum delay across all leaves, or -1 if the
// group is empty.
func (g *ProbeGroup) RootDelay() float64 {
	if g.root == nil {
		return -1
	}
	return g.root.delay
}

// Insert adds p to the group at the given absolute delay (seconds from
// now the scheduler's clock anchors against).
func (g *ProbeGroup) Insert(p *probe.Probe, delay float64) {
	leaf := &node{delay: delay, probe: p}
	g.leafOf[p] = leaf

	if g.root == nil {
		g.root = leaf
		return
	}

	// Graft the new leaf beside the current minimum-delay leaf: a fresh
	// interior node carrying {that leaf, new leaf} takes its place
	// (becoming the root when the tree was a single leaf), then the min
	// delay is propagated upward. No rebalancing is done, so the depth
	// depends on insertion order.
	target := g.minLeaf()
	parent := target.parent

	interior := &node{parent: parent}
	if parent != nil {
		if parent.children[0] == target {
			parent.children[0] = interior
		} else {
			parent.children[1] = interior
		}
	} else {
		g.root = interior
	}
	interior.children[0] = target
	interior.children[1] = leaf
	target.parent = interior
	leaf.parent = interior
	interior.delay = minf(target.delay, leaf.delay)

	g.propagateUp(parent)
}

// minLeaf returns the current leaf holding the minimum delay (always
// directly reachable since interior nodes mirror the min of their
// children down to the root).
func (g *ProbeGroup) minLeaf() *node {
	n := g.root
	for !n.isLeaf() {
		if n.children[0].delay <= n.children[1].delay {
			n = n.children[0]
		} else {
			n = n.children[1]
		}
	}
	return n
}

// Delete removes p's leaf from the group, recomputing ancestors' min
// delay up to the root.
func (g *ProbeGroup) Delete(p *probe.Probe) {
	leaf, ok := g.leafOf[p]
	if !ok {
		return
	}
	delete(g.leafOf, p)

	parent := leaf.parent
	if parent == nil {
		g.root = nil
		return
	}

	var sibling *node
	if parent.children[0] == leaf {
		sibling = parent.children[1]
	} else {
		sibling = parent.children[0]
	}
	sibling.parent = parent.parent
	if parent.parent == nil {
		g.root = sibling
	} else {
		gp := parent.parent
		if gp.children[0] == parent {
			gp.children[0] = sibling
		} else {
			gp.children[1] = sibling
		}
	}

	g.propagateUp(sibling.parent)
}

// propagateUp recomputes n's delay as the min of its children and
// walks upward until the root is reached, stopping early if a node's
// delay does not change.
func (g *ProbeGroup) propagateUp(n *node) {
	for n != nil {
		if n.isLeaf() {
			n = n.parent
			continue
		}
		next := minf(n.children[0].delay, n.children[1].delay)
		if next == n.delay {
			return
		}
		n.delay = next
		n = n.parent
	}
}

// NextScheduled returns every probe whose leaf delay equals the root's
// delay — the probes due to fire now.
func (g *ProbeGroup) NextScheduled() []*probe.Probe {
	if g.root == nil {
		return nil
	}
	var out []*probe.Probe
	g.collectAtDelay(g.root, g.root.delay, &out)
	return out
}

func (g *ProbeGroup) collectAtDelay(n *node, delay float64, out *[]*probe.Probe) {
	if n == nil || n.delay != delay {
		return
	}
	if n.isLeaf() {
		*out = append(*out, n.probe)
		return
	}
	g.collectAtDelay(n.children[0], delay, out)
	g.collectAtDelay(n.children[1], delay, out)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
