// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockchain implements the header-validation and
// chain-selection engine at the heart of spec.md: the in-memory block
// index (C5), the chainstate manager (C7), orphan caching, the failed
// block cache, tip-change notifications, and the network-adjusted
// clock. Its shape follows exccd/blockchain's blockNode/BlockIndex
// split (see blockindex_test.go in the teacher tree), generalized from
// a transaction-carrying chain to a headers-only one.
package blockchain

import (
	"time"

	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
	"github.com/decred/dcrd/math/uint256"
)

// Status is a bitset describing what has been validated about a node,
// per spec.md §3.
type Status uint8

const (
	StatusHaveHeader Status = 1 << iota
	StatusValidHeader
	StatusValidPoW
	StatusFailed
	StatusFailedChild
)

func (s Status) has(flag Status) bool { return s&flag != 0 }

// KnownValid reports whether the node has passed every validation gate
// and is neither itself nor a descendant of a failed node.
func (s Status) KnownValid() bool {
	return s.has(StatusValidHeader) && s.has(StatusValidPoW) &&
		!s.has(StatusFailed) && !s.has(StatusFailedChild)
}

// Node is one entry in the in-memory header DAG (spec.md §3's "block
// index entry"). parent is a non-owning back-reference: the block
// manager (BlockIndex) owns every node for the process lifetime, per
// spec.md §9's ownership note, so a bare pointer is safe without
// reference counting.
type Node struct {
	id     primitives.Hash256
	height int64
	header wire.BlockHeader
	parent *Node

	chainWork uint256.Uint256
	status    Status

	timeReceived time.Time
}

// NewNode constructs a detached node for header h whose parent is
// parent (nil only for genesis).
func NewNode(h *wire.BlockHeader, parent *Node) *Node {
	n := &Node{
		header:       *h,
		parent:       parent,
		timeReceived: time.Now(),
	}
	n.id = h.BlockHash()
	if parent != nil {
		n.height = parent.height + 1
	}
	return n
}

func (n *Node) ID() primitives.Hash256  { return n.id }
func (n *Node) Height() int64           { return n.height }
func (n *Node) Header() wire.BlockHeader { return n.header }
func (n *Node) Parent() *Node           { return n.parent }
func (n *Node) Status() Status          { return n.status }
func (n *Node) ChainWork() uint256.Uint256 { return n.chainWork }
func (n *Node) TimeReceived() time.Time { return n.timeReceived }

// Ancestor walks parent links back to the node at the given height, or
// returns nil if height is out of range for this node's chain.
func (n *Node) Ancestor(height int64) *Node {
	if height < 0 || height > n.height {
		return nil
	}
	node := n
	for node != nil && node.height > height {
		node = node.parent
	}
	return node
}

// RelativeAncestor returns the ancestor distance blocks behind n.
func (n *Node) RelativeAncestor(distance int64) *Node {
	return n.Ancestor(n.height - distance)
}

// CalcPastMedianTime returns the median timestamp of the last 11 nodes
// ending at n (spec.md's MTP, §4.5 step 6 / glossary). With fewer than
// 11 ancestors available it medians whatever is present, matching the
// teacher's TestCalcPastMedianTime behavior for near-genesis heights.
func (n *Node) CalcPastMedianTime() int64 {
	timestamps := make([]int64, 0, 11)
	node := n
	for i := 0; i < 11 && node != nil; i++ {
		timestamps = append(timestamps, int64(node.header.Time))
		node = node.parent
	}

	// Insertion sort: the window is always tiny (<=11 entries).
	for i := 1; i < len(timestamps); i++ {
		for j := i; j > 0 && timestamps[j-1] > timestamps[j]; j-- {
			timestamps[j-1], timestamps[j] = timestamps[j], timestamps[j-1]
		}
	}
	return timestamps[len(timestamps)/2]
}
