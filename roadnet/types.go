// Package roadnet models the road network the robot routes over.
package roadnet

import "roverd/geo"

// RoadClass is the closed enumeration of edge road classes.
type RoadClass int

const (
	ClassUnknown RoadClass = iota
	ClassHighway
	ClassMainRoad
	ClassResidential
	ClassService
	ClassPedestrian
)

var classNames = map[RoadClass]string{
	ClassUnknown:     "unknown",
	ClassHighway:     "highway",
	ClassMainRoad:    "main_road",
	ClassResidential: "residential",
	ClassService:     "service",
	ClassPedestrian:  "pedestrian",
}

func (c RoadClass) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "unknown"
}

// Weight returns the routing cost multiplier for the class. Every factor
// is >= 1.0 so the great-circle heuristic stays admissible.
func (c RoadClass) Weight() float64 {
	switch c {
	case ClassHighway:
		return 1.0
	case ClassMainRoad:
		return 1.2
	case ClassResidential:
		return 1.5
	case ClassService:
		return 2.0
	case ClassPedestrian:
		return 3.0
	default:
		return 1.5
	}
}

// SpeedLimitKMH returns the simulated speed limit for the class.
func (c RoadClass) SpeedLimitKMH() float64 {
	switch c {
	case ClassHighway:
		return 25.0
	case ClassMainRoad:
		return 20.0
	case ClassResidential:
		return 12.0
	case ClassService:
		return 8.0
	case ClassPedestrian:
		return 5.0
	default:
		return 15.0
	}
}

// ParseRoadClass maps provider tags (OSM highway values and the like) to the
// closed enumeration. Unrecognized tags map to ClassUnknown.
func ParseRoadClass(tag string) RoadClass {
	switch tag {
	case "motorway", "trunk", "highway":
		return ClassHighway
	case "primary", "secondary", "main_road":
		return ClassMainRoad
	case "tertiary", "residential":
		return ClassResidential
	case "service", "unclassified":
		return ClassService
	case "path", "footway", "pedestrian":
		return ClassPedestrian
	default:
		return ClassUnknown
	}
}

// Node is a graph vertex at a geographic coordinate.
type Node struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Edge is a directed weighted connection between two nodes.
type Edge struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	LengthM float64   `json:"length_m"`
	Class   RoadClass `json:"class"`
}

// Graph is a directed weighted road graph. It may be disconnected.
type Graph struct {
	nodes map[string]Node
	adj   map[string][]Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		adj:   make(map[string][]Edge),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n Node) {
	g.nodes[n.ID] = n
}

// AddEdge inserts a directed edge. Unknown endpoints are ignored.
func (g *Graph) AddEdge(e Edge) {
	if _, ok := g.nodes[e.From]; !ok {
		return
	}
	if _, ok := g.nodes[e.To]; !ok {
		return
	}
	g.adj[e.From] = append(g.adj[e.From], e)
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edges returns the outgoing edges of a node.
func (g *Graph) Edges(id string) []Edge {
	return g.adj[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	var n int
	for _, es := range g.adj {
		n += len(es)
	}
	return n
}

// NearestNode snaps a coordinate to the closest graph node by great-circle
// distance. Returns false if the graph is empty.
func (g *Graph) NearestNode(p geo.Point) (Node, bool) {
	var best Node
	bestDist := -1.0
	for _, n := range g.nodes {
		d := geo.Haversine(p, geo.Point{Lat: n.Lat, Lon: n.Lon})
		if bestDist < 0 || d < bestDist {
			best = n
			bestDist = d
		}
	}
	return best, bestDist >= 0
}
