// Package render converts hierarchy graphs into the node/edge shape the web
// client's flow-chart component consumes.
package render

import (
	"okrhub/api/internal/hierarchy"
	"okrhub/api/internal/okr"
)

const (
	NodeTypeObjective = "objective"

	strokeDefault = "#94a3b8"
	strokeOnPath  = "#2563eb"
)

type FlowPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type FlowNodeData struct {
	Label       string        `json:"label"`
	Objective   okr.Objective `json:"objective"`
	Level       int           `json:"level"`
	IsCurrent   bool          `json:"isCurrent"`
	OnPath      bool          `json:"onPath"`
	Deletable   bool          `json:"deletable"`
	AlignmentID string        `json:"alignmentId,omitempty"`
}

type FlowNode struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Position FlowPosition `json:"position"`
	Data     FlowNodeData `json:"data"`
}

type EdgeStyle struct {
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

type FlowEdge struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	Type     string    `json:"type"`
	Animated bool      `json:"animated"`
	Style    EdgeStyle `json:"style"`
}

type FlowGraph struct {
	RootID    string     `json:"rootId"`
	Nodes     []FlowNode `json:"nodes"`
	Edges     []FlowEdge `json:"edges"`
	Truncated bool       `json:"truncated,omitempty"`
}

func Flow(graph hierarchy.Graph) FlowGraph {
	out := FlowGraph{
		RootID:    graph.RootID,
		Nodes:     make([]FlowNode, 0, len(graph.Nodes)),
		Edges:     make([]FlowEdge, 0, len(graph.Edges)),
		Truncated: graph.Truncated,
	}
	for _, node := range graph.Nodes {
		out.Nodes = append(out.Nodes, FlowNode{
			ID:       node.ID,
			Type:     NodeTypeObjective,
			Position: FlowPosition{X: node.Position.X, Y: node.Position.Y},
			Data: FlowNodeData{
				Label:       node.Objective.Title,
				Objective:   node.Objective,
				Level:       node.Level,
				IsCurrent:   node.IsCurrent,
				OnPath:      node.OnPath,
				Deletable:   node.Deletable,
				AlignmentID: node.AlignmentID,
			},
		})
	}
	for _, edge := range graph.Edges {
		style := EdgeStyle{Stroke: strokeDefault, StrokeWidth: 1}
		if edge.OnPath {
			style = EdgeStyle{Stroke: strokeOnPath, StrokeWidth: 2}
		}
		out.Edges = append(out.Edges, FlowEdge{
			ID:       edge.ID,
			Source:   edge.Source,
			Target:   edge.Target,
			Type:     "smoothstep",
			Animated: edge.OnPath,
			Style:    style,
		})
	}
	return out
}
