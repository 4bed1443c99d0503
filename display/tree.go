package display

import "github.com/akinalp/pano/models"

// CommentTree, düz comment listesinden bir kez kurulan ağaç.
//
// Arena + index: comment'ler tek bir slice'ta durur, children map'i
// parent ID → çocuk indeksleri (server sırasıyla) tutar. Render sırasında
// her derinlikte listeyi tekrar filtrelemek yerine index üzerinde iteratif
// yürünür.
type CommentTree struct {
	nodes    []models.Target
	byID     map[string]int
	children map[string][]int
	roots    []int
}

// BuildCommentTree, comment'leri verilen sırada (server created_at sırası) yerleştirir.
// Parent'ı listede olmayan (silinmiş) reply'lar üst seviyeye çıkarılır.
func BuildCommentTree(comments []models.Target) *CommentTree {
	t := &CommentTree{
		nodes:    comments,
		byID:     make(map[string]int, len(comments)),
		children: make(map[string][]int),
	}
	for i := range comments {
		t.byID[comments[i].ID] = i
	}

	for i := range comments {
		parent := comments[i].ParentID
		if parent != nil && *parent != comments[i].ID {
			if _, ok := t.byID[*parent]; ok {
				t.children[*parent] = append(t.children[*parent], i)
				continue
			}
		}
		t.roots = append(t.roots, i)
	}
	return t
}

// Len, ağaçtaki comment sayısı.
func (t *CommentTree) Len() int { return len(t.nodes) }

// Get, ID ile comment.
func (t *CommentTree) Get(id string) (*models.Target, bool) {
	i, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return &t.nodes[i], true
}

// Children, bir comment'in doğrudan reply'ları.
func (t *CommentTree) Children(id string) []*models.Target {
	idx := t.children[id]
	out := make([]*models.Target, len(idx))
	for i, n := range idx {
		out[i] = &t.nodes[n]
	}
	return out
}

// Walk, derinlik-öncelikli (pre-order) gezer. fn false dönerse o düğümün alt ağacı atlanır.
// Açık stack kullanır; derin thread'ler call stack'i büyütmez.
func (t *CommentTree) Walk(fn func(c *models.Target, depth int) bool) {
	type frame struct {
		index int
		depth int
	}

	stack := make([]frame, 0, len(t.roots))
	for i := len(t.roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{t.roots[i], 0})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c := &t.nodes[f.index]
		if !fn(c, f.depth) {
			continue
		}

		kids := t.children[c.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{kids[i], f.depth + 1})
		}
	}
}

// ThreadNode, JSON'a serileştirilebilir iç içe görünüm.
type ThreadNode struct {
	Comment TargetView    `json:"comment"`
	Depth   int           `json:"depth"`
	Replies []*ThreadNode `json:"replies"`
}

// Nested, Walk ile iç içe ThreadNode listesi üretir. viewer, ID → ViewerState.
func (t *CommentTree) Nested(viewer map[string]models.ViewerState) []*ThreadNode {
	roots := []*ThreadNode{}
	// path[d], şu an gezilen d derinliğindeki düğüm.
	var path []*ThreadNode

	t.Walk(func(c *models.Target, depth int) bool {
		node := &ThreadNode{Comment: ViewOf(*c, viewer[c.ID]), Depth: depth, Replies: []*ThreadNode{}}
		path = append(path[:depth], node)
		if depth == 0 {
			roots = append(roots, node)
		} else {
			parent := path[depth-1]
			parent.Replies = append(parent.Replies, node)
		}
		return true
	})
	return roots
}
