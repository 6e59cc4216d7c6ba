// Package routing computes routes over a road graph with A* and Dijkstra,
// densifies them for smooth movement, and degrades to a straight line when
// search fails.
package routing

import (
	"container/heap"
	"errors"
	"fmt"

	"roverd/geo"
	"roverd/roadnet"
)

// ErrNoPathFound is returned when graph search exhausts without connecting
// origin and destination.
var ErrNoPathFound = errors.New("no path found")

// Algorithm selects the search strategy.
type Algorithm string

const (
	AlgorithmAStar    Algorithm = "astar"
	AlgorithmDijkstra Algorithm = "dijkstra"
)

// densifyStepM is the approximate spacing of interpolated waypoints.
const densifyStepM = 10.0

// straightLineSteps is the segment count of the straight-line fallback route.
const straightLineSteps = 20

// Route is an ordered waypoint sequence with its physical distance and
// estimated duration.
type Route struct {
	Points      []geo.Point `json:"points"`
	DistanceM   float64     `json:"distance_m"`
	DurationMin float64     `json:"duration_min"`
}

// Engine computes routes at a nominal cruising speed.
type Engine struct {
	speedKMH float64
}

// NewEngine creates a route engine. speedKMH is the nominal cruising speed
// used for duration estimates.
func NewEngine(speedKMH float64) *Engine {
	if speedKMH <= 0 {
		speedKMH = 15.0
	}
	return &Engine{speedKMH: speedKMH}
}

// ComputeRoute snaps origin and destination to the graph, runs the selected
// algorithm, and returns a densified route. Fails with ErrNoPathFound when
// the endpoints are not connected.
func (e *Engine) ComputeRoute(g *roadnet.Graph, origin, dest geo.Point, alg Algorithm) (*Route, error) {
	if g == nil || g.NodeCount() == 0 {
		return nil, fmt.Errorf("compute route: empty graph: %w", ErrNoPathFound)
	}

	start, _ := g.NearestNode(origin)
	goal, _ := g.NearestNode(dest)

	var nodePath []roadnet.Node
	var err error
	switch alg {
	case AlgorithmDijkstra:
		nodePath, err = search(g, start, goal, false)
	default:
		nodePath, err = search(g, start, goal, true)
	}
	if err != nil {
		return nil, err
	}

	points, distance := densify(g, nodePath)
	return &Route{
		Points:      points,
		DistanceM:   distance,
		DurationMin: e.duration(distance),
	}, nil
}

// StraightLine returns the terminal fallback route: evenly interpolated
// points from origin to destination. It never fails.
func (e *Engine) StraightLine(origin, dest geo.Point) *Route {
	points := make([]geo.Point, 0, straightLineSteps+1)
	for i := 0; i <= straightLineSteps; i++ {
		points = append(points, geo.Lerp(origin, dest, float64(i)/straightLineSteps))
	}
	distance := geo.Haversine(origin, dest)
	return &Route{
		Points:      points,
		DistanceM:   distance,
		DurationMin: e.duration(distance),
	}
}

// RouteOrFallback computes a graph route and degrades to the straight-line
// fallback when search fails. It never fails.
func (e *Engine) RouteOrFallback(g *roadnet.Graph, origin, dest geo.Point, alg Algorithm) *Route {
	r, err := e.ComputeRoute(g, origin, dest, alg)
	if err != nil {
		return e.StraightLine(origin, dest)
	}
	return r
}

// Comparison holds both algorithms' results for the same endpoints.
type Comparison struct {
	AStar              *Route  `json:"astar"`
	Dijkstra           *Route  `json:"dijkstra"`
	DistanceDifference float64 `json:"distance_difference_m"`
	Recommended        string  `json:"recommended"`
}

// Compare runs both algorithms and reports the smaller-distance choice.
// A* optimizes weighted cost, so it may return a longer physical distance.
func (e *Engine) Compare(g *roadnet.Graph, origin, dest geo.Point) (*Comparison, error) {
	astar, err := e.ComputeRoute(g, origin, dest, AlgorithmAStar)
	if err != nil {
		return nil, err
	}
	dijkstra, err := e.ComputeRoute(g, origin, dest, AlgorithmDijkstra)
	if err != nil {
		return nil, err
	}

	diff := astar.DistanceM - dijkstra.DistanceM
	if diff < 0 {
		diff = -diff
	}
	recommended := "dijkstra"
	if astar.DistanceM <= dijkstra.DistanceM {
		recommended = "astar"
	}
	return &Comparison{
		AStar:              astar,
		Dijkstra:           dijkstra,
		DistanceDifference: diff,
		Recommended:        recommended,
	}, nil
}

func (e *Engine) duration(distanceM float64) float64 {
	return distanceM / 1000 / e.speedKMH * 60
}

// search runs Dijkstra (weighted=false, cost = physical length) or A*
// (weighted=true, cost = length x road-class weight with a great-circle
// heuristic) from start to goal.
func search(g *roadnet.Graph, start, goal roadnet.Node, weighted bool) ([]roadnet.Node, error) {
	goalPt := geo.Point{Lat: goal.Lat, Lon: goal.Lon}
	heuristic := func(n roadnet.Node) float64 {
		if !weighted {
			return 0
		}
		return geo.Haversine(geo.Point{Lat: n.Lat, Lon: n.Lon}, goalPt)
	}

	dist := map[string]float64{start.ID: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &nodeQueue{}
	heap.Init(pq)
	heap.Push(pq, &queueItem{id: start.ID, priority: heuristic(start)})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queueItem)
		if visited[item.id] {
			continue
		}
		visited[item.id] = true

		if item.id == goal.ID {
			return reconstruct(g, prev, start.ID, goal.ID), nil
		}

		for _, edge := range g.Edges(item.id) {
			if visited[edge.To] {
				continue
			}
			cost := edge.LengthM
			if weighted {
				cost *= edge.Class.Weight()
			}
			alt := dist[item.id] + cost
			if d, seen := dist[edge.To]; !seen || alt < d {
				dist[edge.To] = alt
				prev[edge.To] = item.id
				next, _ := g.Node(edge.To)
				heap.Push(pq, &queueItem{id: edge.To, priority: alt + heuristic(next)})
			}
		}
	}

	return nil, fmt.Errorf("search %s -> %s: %w", start.ID, goal.ID, ErrNoPathFound)
}

func reconstruct(g *roadnet.Graph, prev map[string]string, startID, goalID string) []roadnet.Node {
	var ids []string
	for id := goalID; ; {
		ids = append(ids, id)
		if id == startID {
			break
		}
		id = prev[id]
	}
	path := make([]roadnet.Node, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		n, _ := g.Node(ids[i])
		path = append(path, n)
	}
	return path
}

// densify expands a node path into waypoints spaced roughly densifyStepM
// apart, preserving the snapped node coordinates exactly. Returns the
// waypoints and the total physical distance of the underlying edges.
func densify(g *roadnet.Graph, nodePath []roadnet.Node) ([]geo.Point, float64) {
	if len(nodePath) == 0 {
		return nil, 0
	}
	points := []geo.Point{{Lat: nodePath[0].Lat, Lon: nodePath[0].Lon}}
	var total float64

	for i := 0; i < len(nodePath)-1; i++ {
		u, v := nodePath[i], nodePath[i+1]
		uPt := geo.Point{Lat: u.Lat, Lon: u.Lon}
		vPt := geo.Point{Lat: v.Lat, Lon: v.Lon}

		segLen := edgeLength(g, u.ID, v.ID)
		if segLen <= 0 {
			segLen = geo.Haversine(uPt, vPt)
		}
		total += segLen

		steps := int(segLen / densifyStepM)
		if steps < 2 {
			steps = 2
		}
		for j := 1; j < steps; j++ {
			points = append(points, geo.Lerp(uPt, vPt, float64(j)/float64(steps)))
		}
		points = append(points, vPt)
	}

	return points, total
}

func edgeLength(g *roadnet.Graph, from, to string) float64 {
	for _, e := range g.Edges(from) {
		if e.To == to {
			return e.LengthM
		}
	}
	return 0
}

// queueItem is a priority queue entry.
type queueItem struct {
	id       string
	priority float64
}

type nodeQueue []*queueItem

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(*queueItem)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
