package node

import (
	"math/bits"

	mapset "github.com/deckarep/golang-set/v2"
)

// nodeShift returns the clamped shift width used by the peer-distance
// draw below (SPEC_FULL.md §4.11, resolving spec.md §9's overflow open
// question: "clamp k to a safe range").
func nodeShift(nodeCount int) int {
	shift := bits.Len(uint(nodeCount))
	if shift > 30 {
		shift = 30
	}
	return shift
}

// peerDistance draws d = 1 + uniform(0, 2^uniform(0, shift+1) - 1), the
// locality-biased distribution of spec.md §4.5 step 1.
func peerDistance(w *World, shift int) int {
	k := w.Rng.Intn(shift + 1)
	span := 1 << uint(k)
	return 1 + w.Rng.Intn(span)
}

// BuildPeers implements spec.md §4.5's peer-table construction for every
// node in nodes: each node attempts outboundPeers outbound connections,
// picking a locality-biased distance, rejecting duplicates and full
// peers, and filling both endpoints' slots symmetrically with a matching
// delay (spec.md §3 "Peer graph... undirected"). The teacher
// (LarryRuane-minesim/minesim.go) instead reads a static network file;
// this spec's default node count (2^15) makes a hand-authored topology
// impractical, so the graph is generated here (SPEC_FULL.md §4.11).
func BuildPeers(w *World, nodes []*Node, outboundPeers, npeer int, hopDelaySeconds float64) {
	n := len(nodes)
	shift := nodeShift(n)
	existing := make([]mapset.Set[int], n)
	for i := range existing {
		existing[i] = mapset.NewThreadUnsafeSet[int]()
		for _, p := range nodes[i].Peers {
			existing[i].Add(p.NI)
		}
	}

	for i, node := range nodes {
		for attempt := 0; attempt < outboundPeers; attempt++ {
			d := peerDistance(w, shift)
			candidate := (node.Index + d) % n
			if candidate == node.Index {
				continue
			}
			if existing[node.Index].Contains(candidate) {
				continue
			}
			if len(nodes[candidate].Peers) >= npeer || len(node.Peers) >= npeer {
				continue
			}
			delay := float64(d) * hopDelaySeconds
			node.Peers = append(node.Peers, Peer{NI: candidate, Delay: delay})
			nodes[candidate].Peers = append(nodes[candidate].Peers, Peer{NI: node.Index, Delay: delay})
			existing[node.Index].Add(candidate)
			existing[candidate].Add(node.Index)
		}
	}
}
