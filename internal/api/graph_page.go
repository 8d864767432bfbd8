package api

import (
	"RedWire/internal/model"
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	localNodeColor  = "#e6550d"
	remoteNodeColor = "#3182bd"
	baseSymbolSize  = 12
	maxSymbolSize   = 48
)

// graphPageHandler renders the current graph view as a standalone HTML page.
func (s *Server) graphPageHandler(w http.ResponseWriter, r *http.Request) {
	view := s.mgr.Pipeline().LaidOutGraphView(s.layout)

	var buf bytes.Buffer
	if err := renderGraph(&buf, view); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to render graph: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderGraph(buf *bytes.Buffer, view model.GraphView) error {
	nodes := make([]opts.GraphNode, 0, len(view.Nodes))
	for _, n := range view.Nodes {
		color := remoteNodeColor
		if n.Local {
			color = localNodeColor
		}
		nodes = append(nodes, opts.GraphNode{
			Name:       n.Address,
			X:          float32(n.X * 100),
			Y:          float32(n.Y * 100),
			Value:      float32(n.Degree),
			SymbolSize: symbolSize(n.Degree),
			ItemStyle:  &opts.ItemStyle{Color: color},
		})
	}
	links := make([]opts.GraphLink, 0, len(view.Edges))
	for _, e := range view.Edges {
		links = append(links, opts.GraphLink{Source: e.A, Target: e.B})
	}

	g := charts.NewGraph()
	g.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: view.Title, Width: "1000px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    view.Title,
			Subtitle: fmt.Sprintf("hosts=%d conversations=%d", len(view.Nodes), len(view.Edges)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	g.AddSeries("hosts", nodes, links,
		charts.WithGraphChartOpts(opts.GraphChart{
			Layout:    "none",
			Roam:      opts.Bool(true),
			Draggable: opts.Bool(true),
		}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
	)
	return g.Render(buf)
}

// symbolSize grows with the number of peers a host talks to.
func symbolSize(degree int) int {
	size := baseSymbolSize + 4*degree
	if size > maxSymbolSize {
		return maxSymbolSize
	}
	return size
}
