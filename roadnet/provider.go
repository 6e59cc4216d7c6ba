package roadnet

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"roverd/geo"
)

// Provider fetches a road graph for a region.
type Provider interface {
	FetchRoadNetwork(ctx context.Context, center geo.Point, radiusM int) (*Graph, error)
}

// graphDoc is the provider wire format.
type graphDoc struct {
	Nodes []Node `json:"nodes"`
	Edges []struct {
		From    string  `json:"from"`
		To      string  `json:"to"`
		LengthM float64 `json:"length_m"`
		Class   string  `json:"class"`
	} `json:"edges"`
}

// HTTPProvider fetches road graphs from a JSON endpoint.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint URL.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRoadNetwork requests the graph around a center point.
func (p *HTTPProvider) FetchRoadNetwork(ctx context.Context, center geo.Point, radiusM int) (*Graph, error) {
	if p.url == "" {
		return nil, fmt.Errorf("no provider URL configured")
	}

	url := fmt.Sprintf("%s?lat=%f&lon=%f&radius=%d", p.url, center.Lat, center.Lon, radiusM)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch road network: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch road network: status %d", resp.StatusCode)
	}

	var doc graphDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode road network: %w", err)
	}

	g := NewGraph()
	for _, n := range doc.Nodes {
		g.AddNode(n)
	}
	for _, e := range doc.Edges {
		g.AddEdge(Edge{From: e.From, To: e.To, LengthM: e.LengthM, Class: ParseRoadClass(e.Class)})
	}
	if g.NodeCount() == 0 {
		return nil, fmt.Errorf("road network is empty")
	}
	return g, nil
}

// Service caches the current road graph and absorbs provider failures by
// synthesizing a fallback grid. Fetch never fails.
type Service struct {
	mu       sync.RWMutex
	provider Provider
	graph    *Graph
	center   geo.Point
	radiusM  int
	logFn    func(format string, args ...interface{})
}

// NewService creates a road network service. provider may be nil, in which
// case every region gets a synthetic grid.
func NewService(provider Provider, logFn func(format string, args ...interface{})) *Service {
	if logFn == nil {
		logFn = log.Printf
	}
	return &Service{provider: provider, logFn: logFn}
}

// Fetch returns a road graph covering the center point, fetching from the
// provider when the cached graph does not cover the region. Provider failure
// is absorbed: a synthetic grid is returned instead.
func (s *Service) Fetch(ctx context.Context, center geo.Point, radiusM int) *Graph {
	s.mu.RLock()
	if s.graph != nil && s.covers(center) {
		g := s.graph
		s.mu.RUnlock()
		return g
	}
	s.mu.RUnlock()

	var g *Graph
	if s.provider != nil {
		fetched, err := s.provider.FetchRoadNetwork(ctx, center, radiusM)
		if err != nil {
			s.logFn("road network fetch failed: %v (using synthetic grid)", err)
		} else {
			g = fetched
		}
	}
	if g == nil {
		g = SyntheticGrid(center)
	}

	s.mu.Lock()
	s.graph = g
	s.center = center
	s.radiusM = radiusM
	s.mu.Unlock()

	s.logFn("road network ready: %d nodes, %d edges", g.NodeCount(), g.EdgeCount())
	return g
}

// Current returns the cached graph, or nil if none has been fetched.
func (s *Service) Current() *Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// covers reports whether the cached graph's region contains the point.
// Caller holds at least a read lock.
func (s *Service) covers(p geo.Point) bool {
	if s.radiusM <= 0 {
		return false
	}
	return geo.Haversine(s.center, p) <= float64(s.radiusM)
}
