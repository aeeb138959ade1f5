package merk

import (
	"github.com/dashpay/grove/cost"
)

// applySorted applies a sorted, deduplicated batch to the subtree
// rooted at link, fetching only the subtrees the batch actually
// touches (spec §4.5 "applySorted(root, batch)"). It returns the new
// link for this subtree (nil if the subtree becomes empty).
func applySorted(src Source, link *Link, batch []Entry, c *cost.Cost) (*Link, error) {
	if len(batch) == 0 {
		// Untouched: do not fetch, keep whatever state the link is in.
		return link, nil
	}

	node, err := fetch(src, link, c)
	if err != nil {
		return nil, err
	}
	if node == nil {
		newNode, err := build(batch)
		if err != nil {
			return nil, err
		}
		if newNode == nil {
			return nil, nil
		}
		return newModifiedLink(newNode, pendingWrites(newNode)), nil
	}

	idx, found := search(batch, node.Key)
	if found {
		leftBatch, rightBatch := batch[:idx], batch[idx+1:]
		updated, deleted, err := materializeOp(node, node.Key, batch[idx].Op)
		if err != nil {
			return nil, err
		}

		newLeft, err := applySorted(src, node.Left, leftBatch, c)
		if err != nil {
			return nil, err
		}
		newRight, err := applySorted(src, node.Right, rightBatch, c)
		if err != nil {
			return nil, err
		}

		if deleted {
			return joinAfterDelete(src, newLeft, newRight, c)
		}

		updated.Left = newLeft
		updated.Right = newRight
		balanced, err := maybeBalance(src, updated, c)
		if err != nil {
			return nil, err
		}
		return newModifiedLink(balanced, pendingWrites(balanced)), nil
	}

	splitIdx := idx // sort.Search already gave us the first key > node.Key
	leftBatch, rightBatch := batch[:splitIdx], batch[splitIdx:]

	newLeft, err := applySorted(src, node.Left, leftBatch, c)
	if err != nil {
		return nil, err
	}
	newRight, err := applySorted(src, node.Right, rightBatch, c)
	if err != nil {
		return nil, err
	}
	node.Left = newLeft
	node.Right = newRight
	balanced, err := maybeBalance(src, node, c)
	if err != nil {
		return nil, err
	}
	return newModifiedLink(balanced, pendingWrites(balanced)), nil
}

// joinAfterDelete merges the left and right subtrees of a node that
// was just deleted into a single balanced subtree, promoting the
// predecessor or successor edge node from whichever side is taller
// (spec §4.4 "Deletion-by-promotion").
func joinAfterDelete(src Source, left, right *Link, c *cost.Cost) (*Link, error) {
	if left == nil {
		return right, nil
	}
	if right == nil {
		return left, nil
	}

	leftNode, err := fetch(src, left, c)
	if err != nil {
		return nil, err
	}
	rightNode, err := fetch(src, right, c)
	if err != nil {
		return nil, err
	}

	var promoted *Node
	if leftNode.Height() >= rightNode.Height() {
		var remainder *Link
		promoted, remainder, err = removeRightmost(src, leftNode, c)
		if err != nil {
			return nil, err
		}
		promoted.Left = remainder
		promoted.Right = right
	} else {
		var remainder *Link
		promoted, remainder, err = removeLeftmost(src, rightNode, c)
		if err != nil {
			return nil, err
		}
		promoted.Left = left
		promoted.Right = remainder
	}

	balanced, err := maybeBalance(src, promoted, c)
	if err != nil {
		return nil, err
	}
	return newModifiedLink(balanced, pendingWrites(balanced)), nil
}

// removeRightmost extracts the rightmost (largest-keyed) node from
// the subtree rooted at n, returning it detached from its children
// along with the link for what remains of n's subtree once it is
// gone.
func removeRightmost(src Source, n *Node, c *cost.Cost) (*Node, *Link, error) {
	if n.Right == nil {
		return n, n.Left, nil
	}
	rightNode, err := fetch(src, n.Right, c)
	if err != nil {
		return nil, nil, err
	}
	promoted, remainder, err := removeRightmost(src, rightNode, c)
	if err != nil {
		return nil, nil, err
	}
	n.Right = remainder
	balanced, err := maybeBalance(src, n, c)
	if err != nil {
		return nil, nil, err
	}
	return promoted, newModifiedLink(balanced, pendingWrites(balanced)), nil
}

// removeLeftmost is removeRightmost's mirror image.
func removeLeftmost(src Source, n *Node, c *cost.Cost) (*Node, *Link, error) {
	if n.Left == nil {
		return n, n.Right, nil
	}
	leftNode, err := fetch(src, n.Left, c)
	if err != nil {
		return nil, nil, err
	}
	promoted, remainder, err := removeLeftmost(src, leftNode, c)
	if err != nil {
		return nil, nil, err
	}
	n.Left = remainder
	balanced, err := maybeBalance(src, n, c)
	if err != nil {
		return nil, nil, err
	}
	return promoted, newModifiedLink(balanced, pendingWrites(balanced)), nil
}
