package roadnet

import (
	"fmt"

	"roverd/geo"
)

const (
	gridSize = 10
	gridStep = 0.001 // ~111 meters
)

// SyntheticGrid builds a uniform grid lattice of residential roads around a
// center point. It is the first rung of the routing fallback ladder, used
// when no real road network is available for the region.
func SyntheticGrid(center geo.Point) *Graph {
	g := NewGraph()

	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			g.AddNode(Node{
				ID:  gridNodeID(i, j),
				Lat: center.Lat + (float64(i)-gridSize/2)*gridStep,
				Lon: center.Lon + (float64(j)-gridSize/2)*gridStep,
			})
		}
	}

	connect := func(a, b string) {
		na, _ := g.Node(a)
		nb, _ := g.Node(b)
		d := geo.Haversine(geo.Point{Lat: na.Lat, Lon: na.Lon}, geo.Point{Lat: nb.Lat, Lon: nb.Lon})
		g.AddEdge(Edge{From: a, To: b, LengthM: d, Class: ClassResidential})
		g.AddEdge(Edge{From: b, To: a, LengthM: d, Class: ClassResidential})
	}

	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			if i < gridSize-1 {
				connect(gridNodeID(i, j), gridNodeID(i+1, j))
			}
			if j < gridSize-1 {
				connect(gridNodeID(i, j), gridNodeID(i, j+1))
			}
		}
	}

	return g
}

func gridNodeID(i, j int) string {
	return fmt.Sprintf("node_%d_%d", i, j)
}
