package cfg

import (
	"fmt"

	"github.com/dominikbraun/graph"
)

// index 建立图索引并标记从入口可达的块
func (g *Graph) index() {
	g.dg = graph.New(graph.IntHash, graph.Directed())
	for _, b := range g.Blocks {
		_ = g.dg.AddVertex(b.ID, graph.VertexAttribute("label", fmt.Sprintf("%#x", b.Start)))
	}
	for _, e := range g.Edges {
		if e.To < 0 {
			continue
		}
		// JUMPI 的两个分支可能指向同一个块，重复边直接忽略
		_ = g.dg.AddEdge(e.From, e.To, graph.EdgeAttribute("label", e.Kind.String()))
	}
	_ = graph.BFS(g.dg, g.Entry, func(id int) bool {
		g.Blocks[id].Reachable = true
		return false
	})
}

// ReachableFrom 从 start 出发沿已解析的边做广度优先遍历。
// stop 返回 true 的块会被标记但不再向后扩展，可为 nil。
func (g *Graph) ReachableFrom(start int, stop func(*Block) bool) []bool {
	seen := make([]bool, len(g.Blocks))
	if start < 0 || start >= len(g.Blocks) {
		return seen
	}
	queue := []int{start}
	seen[start] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		b := g.Blocks[id]
		if stop != nil && stop(b) {
			continue
		}
		for _, e := range b.Succs {
			if e.To >= 0 && !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// Dense 返回底层的有向图，供导出和外部遍历使用
func (g *Graph) Dense() graph.Graph[int, int] {
	return g.dg
}
