package cfg

import (
	"io"

	"github.com/dominikbraun/graph/draw"
)

// WriteDOT 以 Graphviz DOT 格式输出控制流图
func (g *Graph) WriteDOT(w io.Writer) error {
	return draw.DOT(g.dg, w, draw.GraphAttribute("rankdir", "TB"))
}
