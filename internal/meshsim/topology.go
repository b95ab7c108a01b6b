package meshsim

import "meshroute/internal/domain"

// Chain builds a line topology of n single-element nodes addressed
// 0x0001..0x000n, with a symmetric link of the given RSSI between each
// consecutive pair. It is the topology used by the S1, S4 and S6
// scenarios in scenario.go.
func Chain(bus *Bus, n int, rssi int8) []*Node {
	nodes := make([]*Node, n)
	for i := 0; i < n; i++ {
		nodes[i] = bus.AddNode(domain.Addr(i+1), 1)
	}
	for i := 0; i < n-1; i++ {
		bus.Link(nodes[i].addr, nodes[i+1].addr, rssi)
	}
	return nodes
}
