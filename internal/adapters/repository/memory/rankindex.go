package memory

import (
	"math/rand/v2"

	"github.com/okian/admit/internal/domain/model"
)

// rankIndex keeps one hackathon's acceptance candidates in a size-augmented
// treap. In-order traversal yields the acceptance queue best first, using
// model.RanksBefore as the BST order and random heap priorities.
type rankIndex struct {
	root  *node
	byReg map[string]model.Ranked
	rng   *rand.Rand
}

type node struct {
	item  model.Ranked
	prio  uint64
	left  *node
	right *node
	size  int
}

func newRankIndex(rng *rand.Rand) *rankIndex {
	return &rankIndex{byReg: make(map[string]model.Ranked), rng: rng}
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, item model.Ranked, prio uint64) *node {
	if n == nil {
		return &node{item: item, prio: prio, size: 1}
	}
	if model.RanksBefore(item, n.item) {
		n.left = insert(n.left, item, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, item, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// deleteNode removes the node holding item; item must be the exact value
// that was inserted so the search path matches.
func deleteNode(n *node, item model.Ranked) *node {
	if n == nil {
		return nil
	}
	if n.item.Registration.ID == item.Registration.ID {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, item)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, item)
		}
	} else if model.RanksBefore(item, n.item) {
		n.left = deleteNode(n.left, item)
	} else {
		n.right = deleteNode(n.right, item)
	}
	fix(n)
	return n
}

// collectTop appends up to limit items in rank order.
func collectTop(n *node, limit int, out *[]model.Ranked) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.item)
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

// upsert inserts item or moves it to its new position.
func (x *rankIndex) upsert(item model.Ranked) {
	if old, ok := x.byReg[item.Registration.ID]; ok {
		x.root = deleteNode(x.root, old)
	}
	x.byReg[item.Registration.ID] = item
	x.root = insert(x.root, item, x.rng.Uint64())
}

func (x *rankIndex) remove(registrationID string) {
	old, ok := x.byReg[registrationID]
	if !ok {
		return
	}
	x.root = deleteNode(x.root, old)
	delete(x.byReg, registrationID)
}

func (x *rankIndex) top(limit int) []model.Ranked {
	if limit > nsize(x.root) {
		limit = nsize(x.root)
	}
	out := make([]model.Ranked, 0, limit)
	collectTop(x.root, limit, &out)
	return out
}

// position returns the 1-based queue position of a registration.
func (x *rankIndex) position(registrationID string) (int, bool) {
	item, ok := x.byReg[registrationID]
	if !ok {
		return 0, false
	}
	pos := 0
	n := x.root
	for n != nil {
		switch {
		case n.item.Registration.ID == registrationID:
			return pos + nsize(n.left) + 1, true
		case model.RanksBefore(item, n.item):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0, false
}

func (x *rankIndex) len() int {
	return nsize(x.root)
}
