//go:build portico_graph

package engine

import (
	"container/heap"
	"fmt"

	"github.com/porticolabs/portico/portico"
)

func init() {
	RegisterFixedRule("shortest_path_dijkstra", shortestPathDijkstra)
	registerExtension("graph-algos")
}

// shortestPathDijkstra computes shortest paths over a weighted edge
// relation [from, to, weight]. Arguments: $start node, optional $goal
// node. Output columns: start, goal, cost, path (a list of nodes).
// With a goal the search terminates early once the goal is settled;
// without one it produces a row per reachable node.
func shortestPathDijkstra(input *Relation, args []portico.Value) (*Relation, error) {
	if len(input.Columns) != 3 {
		return nil, fmt.Errorf("shortest_path_dijkstra requires an edge relation with [from, to, weight] columns, got %d columns", len(input.Columns))
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("shortest_path_dijkstra takes a start node and an optional goal node, got %d arguments", len(args))
	}
	start := args[0]
	var goal portico.Value
	hasGoal := len(args) == 2
	if hasGoal {
		goal = args[1]
	}

	// Index nodes and build the adjacency list.
	indices := make(map[string]int)
	var nodes []portico.Value
	nodeIdx := func(v portico.Value) (int, error) {
		key, err := appendOrdered(nil, v)
		if err != nil {
			return 0, err
		}
		if idx, ok := indices[string(key)]; ok {
			return idx, nil
		}
		idx := len(nodes)
		indices[string(key)] = idx
		nodes = append(nodes, v)
		return idx, nil
	}

	type edge struct {
		to     int
		weight float64
	}
	var graph [][]edge
	ensure := func(idx int) {
		for len(graph) <= idx {
			graph = append(graph, nil)
		}
	}
	for _, row := range input.Rows {
		from, err := nodeIdx(row[0])
		if err != nil {
			return nil, err
		}
		to, err := nodeIdx(row[1])
		if err != nil {
			return nil, err
		}
		w, err := asWeight(row[2])
		if err != nil {
			return nil, err
		}
		if w < 0 {
			return nil, fmt.Errorf("shortest_path_dijkstra requires non-negative edge weights, got %v", row[2])
		}
		ensure(from)
		ensure(to)
		graph[from] = append(graph[from], edge{to: to, weight: w})
	}

	startKey, err := appendOrdered(nil, start)
	if err != nil {
		return nil, err
	}
	startIdx, ok := indices[string(startKey)]
	out := NewRelation("start", "goal", "cost", "path")
	if !ok {
		return out, nil // start node has no edges; nothing is reachable
	}
	goalIdx := -1
	if hasGoal {
		goalKey, err := appendOrdered(nil, goal)
		if err != nil {
			return nil, err
		}
		if idx, found := indices[string(goalKey)]; found {
			goalIdx = idx
		} else {
			return out, nil // goal not in the graph
		}
	}

	const unvisited = -1
	dist := make([]float64, len(graph))
	back := make([]int, len(graph))
	settled := make([]bool, len(graph))
	for i := range dist {
		dist[i] = -1 // -1 marks unreached
		back[i] = unvisited
	}
	dist[startIdx] = 0

	pq := &costHeap{{cost: 0, node: startIdx}}
	heap.Init(pq)
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(costItem)
		if settled[cur.node] {
			continue
		}
		settled[cur.node] = true
		if hasGoal && cur.node == goalIdx {
			break
		}
		for _, e := range graph[cur.node] {
			next := cur.cost + e.weight
			if dist[e.to] < 0 || next < dist[e.to] {
				dist[e.to] = next
				back[e.to] = cur.node
				heap.Push(pq, costItem{cost: next, node: e.to})
			}
		}
	}

	emit := func(target int) {
		if dist[target] < 0 {
			return
		}
		var path portico.List
		for at := target; at != unvisited; at = back[at] {
			path = append(path, nodes[at])
			if at == startIdx {
				break
			}
		}
		// Reverse into start-to-target order
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		out.Append([]portico.Value{start, nodes[target], dist[target], path})
	}

	if hasGoal {
		emit(goalIdx)
		return out, nil
	}
	for target := range graph {
		if target != startIdx {
			emit(target)
		}
	}
	return out, nil
}

func asWeight(v portico.Value) (float64, error) {
	switch w := v.(type) {
	case int64:
		return float64(w), nil
	case float64:
		return w, nil
	default:
		return 0, fmt.Errorf("edge weight must be numeric, got %T", v)
	}
}

type costItem struct {
	cost float64
	node int
}

type costHeap []costItem

func (h costHeap) Len() int      { return len(h) }
func (h costHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h costHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].node < h[j].node
}

func (h *costHeap) Push(x interface{}) {
	*h = append(*h, x.(costItem))
}

func (h *costHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
