package orderbook

import "github.com/shopspring/decimal"

// Key is the price key ordering a RBTree's levels.
type Key = decimal.Decimal

type color bool

const (
	red   color = true
	black color = false
)

type rbNode struct {
	price  Key
	level  *PriceLevel
	color  color
	left   *rbNode
	right  *rbNode
	parent *rbNode
}

// RBTree is a red-black tree of price levels, keyed by price. If
// descending is true, Min() returns the highest price (used for the bid
// side, where "best" means highest); otherwise Min() returns the lowest
// price (the ask side).
//
// Adapted from the teacher's internal/orderbook/rbtree.go, generalized
// from int64 keys to decimal.Decimal via Cmp().
type RBTree struct {
	root       *rbNode
	size       int
	minNode    *rbNode
	maxNode    *rbNode
	descending bool
}

func NewRBTree(descending bool) *RBTree {
	return &RBTree{descending: descending}
}

func (t *RBTree) Size() int    { return t.size }
func (t *RBTree) IsEmpty() bool { return t.size == 0 }

// Min returns the best price level for this side, or nil if empty.
func (t *RBTree) Min() *PriceLevel {
	n := t.minNode
	if t.descending {
		n = t.maxNode
	}
	if n == nil {
		return nil
	}
	return n.level
}

// Get retrieves the level at price, or nil.
func (t *RBTree) Get(price Key) *PriceLevel {
	n := t.search(price)
	if n == nil {
		return nil
	}
	return n.level
}

func (t *RBTree) search(price Key) *rbNode {
	cur := t.root
	for cur != nil {
		switch {
		case price.LessThan(cur.price):
			cur = cur.left
		case price.GreaterThan(cur.price):
			cur = cur.right
		default:
			return cur
		}
	}
	return nil
}

// Insert adds a price level to the tree.
func (t *RBTree) Insert(level *PriceLevel) {
	newNode := &rbNode{price: level.Price, level: level, color: red}

	if t.root == nil {
		newNode.color = black
		t.root = newNode
		t.minNode, t.maxNode = newNode, newNode
		t.size = 1
		return
	}

	var parent *rbNode
	cur := t.root
	for cur != nil {
		parent = cur
		switch {
		case level.Price.LessThan(cur.price):
			cur = cur.left
		case level.Price.GreaterThan(cur.price):
			cur = cur.right
		default:
			cur.level = level
			return
		}
	}

	newNode.parent = parent
	if level.Price.LessThan(parent.price) {
		parent.left = newNode
	} else {
		parent.right = newNode
	}
	t.size++
	t.fixMinMaxAfterInsert(newNode)
	t.insertFixup(newNode)
}

func (t *RBTree) fixMinMaxAfterInsert(n *rbNode) {
	if t.minNode == nil || n.price.LessThan(t.minNode.price) {
		t.minNode = n
	}
	if t.maxNode == nil || n.price.GreaterThan(t.maxNode.price) {
		t.maxNode = n
	}
}

func (t *RBTree) rotateLeft(n *rbNode) {
	r := n.right
	n.right = r.left
	if r.left != nil {
		r.left.parent = n
	}
	r.parent = n.parent
	if n.parent == nil {
		t.root = r
	} else if n == n.parent.left {
		n.parent.left = r
	} else {
		n.parent.right = r
	}
	r.left = n
	n.parent = r
}

func (t *RBTree) rotateRight(n *rbNode) {
	l := n.left
	n.left = l.right
	if l.right != nil {
		l.right.parent = n
	}
	l.parent = n.parent
	if n.parent == nil {
		t.root = l
	} else if n == n.parent.right {
		n.parent.right = l
	} else {
		n.parent.left = l
	}
	l.right = n
	n.parent = l
}

func (t *RBTree) insertFixup(n *rbNode) {
	for n.parent != nil && n.parent.color == red {
		grandparent := n.parent.parent
		if grandparent == nil {
			break
		}
		if n.parent == grandparent.left {
			uncle := grandparent.right
			if uncle != nil && uncle.color == red {
				n.parent.color = black
				uncle.color = black
				grandparent.color = red
				n = grandparent
				continue
			}
			if n == n.parent.right {
				n = n.parent
				t.rotateLeft(n)
			}
			n.parent.color = black
			grandparent.color = red
			t.rotateRight(grandparent)
		} else {
			uncle := grandparent.left
			if uncle != nil && uncle.color == red {
				n.parent.color = black
				uncle.color = black
				grandparent.color = red
				n = grandparent
				continue
			}
			if n == n.parent.left {
				n = n.parent
				t.rotateRight(n)
			}
			n.parent.color = black
			grandparent.color = red
			t.rotateLeft(grandparent)
		}
	}
	t.root.color = black
}

// Delete removes the level at price, if present.
func (t *RBTree) Delete(price Key) {
	n := t.search(price)
	if n == nil {
		return
	}
	t.size--
	t.deleteNode(n)
	t.recomputeMinMax()
}

func (t *RBTree) recomputeMinMax() {
	if t.root == nil {
		t.minNode, t.maxNode = nil, nil
		return
	}
	cur := t.root
	for cur.left != nil {
		cur = cur.left
	}
	t.minNode = cur
	cur = t.root
	for cur.right != nil {
		cur = cur.right
	}
	t.maxNode = cur
}

func (t *RBTree) deleteNode(z *rbNode) {
	y := z
	yOriginalColor := y.color
	var x, xParent *rbNode

	if z.left == nil {
		x = z.right
		xParent = z.parent
		t.transplant(z, z.right)
	} else if z.right == nil {
		x = z.left
		xParent = z.parent
		t.transplant(z, z.left)
	} else {
		y = t.minimum(z.right)
		yOriginalColor = y.color
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginalColor == black {
		t.deleteFixup(x, xParent)
	}
}

func (t *RBTree) minimum(n *rbNode) *rbNode {
	for n.left != nil {
		n = n.left
	}
	return n
}

func (t *RBTree) transplant(u, v *rbNode) {
	if u.parent == nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

func (t *RBTree) deleteFixup(x, parent *rbNode) {
	for x != t.root && isBlack(x) {
		if parent == nil {
			break
		}
		if x == parent.left {
			sibling := parent.right
			if sibling != nil && sibling.color == red {
				sibling.color = black
				parent.color = red
				t.rotateLeft(parent)
				sibling = parent.right
			}
			if sibling == nil {
				x = parent
				parent = x.parent
				continue
			}
			if isBlack(sibling.left) && isBlack(sibling.right) {
				sibling.color = red
				x = parent
				parent = x.parent
				continue
			}
			if isBlack(sibling.right) {
				if sibling.left != nil {
					sibling.left.color = black
				}
				sibling.color = red
				t.rotateRight(sibling)
				sibling = parent.right
			}
			sibling.color = parent.color
			parent.color = black
			if sibling.right != nil {
				sibling.right.color = black
			}
			t.rotateLeft(parent)
			x = t.root
		} else {
			sibling := parent.left
			if sibling != nil && sibling.color == red {
				sibling.color = black
				parent.color = red
				t.rotateRight(parent)
				sibling = parent.left
			}
			if sibling == nil {
				x = parent
				parent = x.parent
				continue
			}
			if isBlack(sibling.right) && isBlack(sibling.left) {
				sibling.color = red
				x = parent
				parent = x.parent
				continue
			}
			if isBlack(sibling.left) {
				if sibling.right != nil {
					sibling.right.color = black
				}
				sibling.color = red
				t.rotateLeft(sibling)
				sibling = parent.left
			}
			sibling.color = parent.color
			parent.color = black
			if sibling.left != nil {
				sibling.left.color = black
			}
			t.rotateRight(parent)
			x = t.root
		}
	}
	if x != nil {
		x.color = black
	}
}

func isBlack(n *rbNode) bool {
	return n == nil || n.color == black
}

// ForEach walks levels in best-first order (descending price for bids,
// ascending for asks), calling fn until it returns false.
func (t *RBTree) ForEach(fn func(level *PriceLevel) bool) {
	if t.descending {
		t.walkDesc(t.root, fn)
	} else {
		t.walkAsc(t.root, fn)
	}
}

func (t *RBTree) walkAsc(n *rbNode, fn func(*PriceLevel) bool) bool {
	if n == nil {
		return true
	}
	if !t.walkAsc(n.left, fn) {
		return false
	}
	if !fn(n.level) {
		return false
	}
	return t.walkAsc(n.right, fn)
}

func (t *RBTree) walkDesc(n *rbNode, fn func(*PriceLevel) bool) bool {
	if n == nil {
		return true
	}
	if !t.walkDesc(n.right, fn) {
		return false
	}
	if !fn(n.level) {
		return false
	}
	return t.walkDesc(n.left, fn)
}
