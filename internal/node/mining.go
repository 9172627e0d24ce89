package node

import (
	"github.com/larryruane/minesim/internal/chain"
	"github.com/larryruane/minesim/internal/engine"
)

// setup runs once, synchronously, on a node's first scheduling (spec.md
// §4.5): it sets its initial tip to genesis and starts mining if it has
// any hashrate. Peer-table construction, and the network's total
// hashrate, are both established earlier (BuildPeers and
// simulation.New's sum over every node, respectively) since a node's
// solve-time draw needs the complete total, not however much of it has
// accumulated from nodes scheduled before it — see SPEC_FULL.md §9.
func (n *Node) setup(w *World) {
	n.Tip = w.Chain.BaseID()
	if n.IsMiner() {
		n.startMining(w)
	}
}

// startMining begins mining on top of n.Tip (spec.md §4.5 start_mining):
// bump the tip block's active-miner count, draw a Poisson solve time
// scaled by total network hashrate, and schedule the mining-completion
// event.
func (n *Node) startMining(w *World) {
	w.Chain.StartMiningOn(n.Tip)
	solveTime := poisson(w.Rng, w.BlockInterval*w.Chain.TotalHash()/n.Hashrate)

	id := w.Eng.Alloc()
	*w.Eng.Get(id) = engine.Event{
		Notify:  relayNotify,
		Payload: engine.NewBlockMsg{NI: n.Index, Mining: true, BlockID: n.Tip},
	}
	w.Eng.Post(id, w.Now()+solveTime)
}

// stopMining is startMining's inverse (spec.md §4.5 stop_mining).
func (n *Node) stopMining(w *World) {
	w.Chain.StopMiningOn(n.Tip)
}

// relay forwards newBlock to every peer whose known tip is not already at
// least as good, per spec.md §4.5's relay. The peer we just received
// newBlock from is not filtered out (self-loops are harmless: the
// receiver discards them as stale), and the event's recipient is always
// the peer's own node index (SPEC_FULL.md §9's resolution of the
// recipient-index open question), never a local peer-slot index.
func (n *Node) relay(w *World, newBlock chain.BlockID) {
	newHeight := w.Chain.GetHeight(newBlock)
	for _, p := range n.Peers {
		peerNode := w.Nodes[p.NI]
		if w.Chain.ValidBlock(peerNode.Tip) && w.Chain.GetHeight(peerNode.Tip) >= newHeight {
			continue
		}
		id := w.Eng.Alloc()
		*w.Eng.Get(id) = engine.Event{
			Notify:  relayNotify,
			Payload: engine.NewBlockMsg{NI: p.NI, Mining: false, BlockID: newBlock},
		}
		w.Eng.Post(id, w.Now()+p.Delay)
	}
}

// handle processes exactly one event unlinked from this node's input
// queue (spec.md §4.5): a stale mining completion or peer delivery is
// silently discarded (spec.md §7 "StaleEvent"); otherwise the node
// updates its tip, relays, and (if it mines) restarts mining.
func (n *Node) handle(w *World, id engine.EventID) {
	ev := w.Eng.Get(id)
	msg, ok := ev.Payload.(engine.NewBlockMsg)
	if !ok {
		panic("node: unexpected payload on node input queue")
	}
	w.Eng.Free(id)

	if msg.Mining {
		n.handleMined(w, msg.BlockID)
	} else {
		n.handlePeerBlock(w, msg.BlockID)
	}
}

// handleMined implements the mining-completion branch of spec.md §4.5. A
// completion whose BlockID no longer matches n.Tip is stale — a reorg
// happened after this mining event was scheduled — and is discarded
// without touching any counters (the active-miner decrement already
// happened when the reorg occurred).
func (n *Node) handleMined(w *World, minedOnTip chain.BlockID) {
	if minedOnTip != n.Tip {
		w.Log.Trace("discarding stale mining completion", "node", n.Index, "onTip", minedOnTip, "tip", n.Tip)
		return
	}
	n.Mined++
	n.stopMining(w)
	newBlock := w.Chain.Alloc(n.Tip, n.Index)
	w.Log.Trace("mined block", "node", n.Index, "block", newBlock, "height", w.Chain.GetHeight(newBlock))
	w.send(ChainEvent{Kind: "mined", NI: n.Index, BlockID: newBlock})
	if w.OnMined != nil {
		w.OnMined()
	}

	n.Tip = newBlock
	n.relay(w, newBlock)
	n.startMining(w)
}

// handlePeerBlock implements the peer-delivery branch of spec.md §4.5. A
// delivery that is not strictly better than our current tip is stale and
// is silently discarded. Otherwise the node switches to it, computing a
// reorg depth first if it was mining.
func (n *Node) handlePeerBlock(w *World, delivered chain.BlockID) {
	if !w.Chain.ValidBlock(delivered) || w.Chain.GetHeight(delivered) <= w.Chain.GetHeight(n.Tip) {
		w.Log.Trace("discarding stale peer delivery", "node", n.Index, "block", delivered)
		return
	}
	if n.IsMiner() {
		depth := w.Chain.ReorgDepth(n.Tip, delivered)
		if depth > 0 {
			w.Log.Trace("reorg", "node", n.Index, "depth", depth, "maxReorg", w.Chain.MaxReorg())
			w.send(ChainEvent{Kind: "reorg", NI: n.Index, BlockID: delivered, ReorgDepth: depth})
			if w.OnReorg != nil {
				w.OnReorg(depth)
			}
		}
		n.stopMining(w)
	}
	n.Tip = delivered
	w.send(ChainEvent{Kind: "switch", NI: n.Index, BlockID: delivered})
	n.relay(w, delivered)
	if n.IsMiner() {
		n.startMining(w)
	}
}
