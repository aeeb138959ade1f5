package merk

import "github.com/dashpay/grove/cost"

// maybeBalance restores the AVL invariant |bf| <= 1 at n, possibly
// performing one or two rotations, and returns the (possibly new)
// subtree root (spec §4.3). It re-runs itself after a rotation because
// rotation can cascade (spec §4.3 "Re-run maybe_balance ... rotation
// can cascade").
func maybeBalance(src Source, n *Node, c *cost.Cost) (*Node, error) {
	bf := n.BalanceFactor()
	if bf >= -1 && bf <= 1 {
		return n, nil
	}

	var heavySide func(*Node) *Link
	if bf < 0 {
		heavySide = func(x *Node) *Link { return x.Left }
	} else {
		heavySide = func(x *Node) *Link { return x.Right }
	}

	heavyChild, err := fetch(src, heavySide(n), c)
	if err != nil {
		return nil, err
	}

	heavyBF := heavyChild.BalanceFactor()
	needsDoubleRotation := (bf < 0 && heavyBF > 0) || (bf > 0 && heavyBF < 0)
	if needsDoubleRotation {
		// Zig-zag: first rotate the heavy child away from the parent's
		// lean, then fall through to the single rotation below.
		rotated, err := rotate(src, heavyChild, bf > 0, c)
		if err != nil {
			return nil, err
		}
		if bf < 0 {
			n.Left = newModifiedLink(rotated, pendingWrites(rotated))
		} else {
			n.Right = newModifiedLink(rotated, pendingWrites(rotated))
		}
	}

	newRoot, err := rotate(src, n, bf < 0, c)
	if err != nil {
		return nil, err
	}
	return maybeBalance(src, newRoot, c)
}

// rotate performs a single rotation. toRight selects rotation
// direction: toRight == true means the left-heavy child becomes the
// new root and n becomes its right child (spec §4.3 "Rotation").
func rotate(src Source, n *Node, toRight bool, c *cost.Cost) (*Node, error) {
	var heavy *Node
	var err error
	if toRight {
		heavy, err = fetch(src, n.Left, c)
	} else {
		heavy, err = fetch(src, n.Right, c)
	}
	if err != nil {
		return nil, err
	}

	var grandchild *Node
	if toRight {
		grandchild, err = fetch(src, heavy.Right, c)
	} else {
		grandchild, err = fetch(src, heavy.Left, c)
	}
	if err != nil {
		return nil, err
	}

	// Reattach grandchild as n's heavy-side child.
	if toRight {
		if grandchild != nil {
			n.Left = newModifiedLink(grandchild, pendingWrites(grandchild))
		} else {
			n.Left = nil
		}
	} else {
		if grandchild != nil {
			n.Right = newModifiedLink(grandchild, pendingWrites(grandchild))
		} else {
			n.Right = nil
		}
	}

	// Reattach n as heavy's opposite-side child.
	if toRight {
		heavy.Right = newModifiedLink(n, pendingWrites(n))
	} else {
		heavy.Left = newModifiedLink(n, pendingWrites(n))
	}

	return heavy, nil
}

// pendingWrites computes "1 + left.pendingWrites + right.pendingWrites"
// for a freshly-modified node (spec §4.2).
func pendingWrites(n *Node) uint64 {
	if n == nil {
		return 0
	}
	var total uint64 = 1
	if n.Left != nil && n.Left.state == Modified {
		total += n.Left.pendingWrites
	}
	if n.Right != nil && n.Right.state == Modified {
		total += n.Right.pendingWrites
	}
	return total
}
