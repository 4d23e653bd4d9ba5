// Package simulation wires several nodes onto an in-memory radio medium so
// propagation can be watched without hardware.
package simulation

import (
	"context"
	"fmt"
	"panic_mesh/internal/config"
	"panic_mesh/internal/dataType"
	"panic_mesh/internal/server"
	"panic_mesh/internal/transport"
	"time"

	"go.uber.org/zap"
)

// DemoDevices is the default cast: a responder at one end of a line of users.
var DemoDevices = []string{"Responder_Alpha", "User_Bob", "User_Carol", "User_David"}

type Simulation struct {
	Network *transport.MemoryNetwork
	Nodes   []*server.Node
	byName  map[string]*server.Node
}

// NewLine creates one node per name from the base config and links each only
// to its list neighbours, so messages have to be relayed end to end. The
// first device is made the responder.
func NewLine(base config.MainConfig, names []string, loggerFor func(name string) *zap.Logger) (*Simulation, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no devices")
	}
	s := &Simulation{
		Network: transport.NewMemoryNetwork(),
		byName:  make(map[string]*server.Node, len(names)),
	}
	for i, name := range names {
		cfg := base
		cfg.NodeName = name
		cfg.Responder = i == 0
		cfg.Peers = nil
		n, err := server.NewNode(&cfg, s.Network.Join(name), loggerFor(name))
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", name, err)
		}
		s.Nodes = append(s.Nodes, n)
		s.byName[name] = n
	}
	for i := 1; i < len(names); i++ {
		s.Network.Link(names[i-1], names[i])
	}
	return s, nil
}

func (s *Simulation) Node(name string) *server.Node {
	return s.byName[name]
}

func (s *Simulation) Start() {
	for _, n := range s.Nodes {
		n.Start()
	}
}

func (s *Simulation) Stop() {
	for _, n := range s.Nodes {
		n.Stop()
	}
}

// RunPanicDemo sends a panic from the last device and waits until the first
// device (the responder) lists it as an active alert.
func (s *Simulation) RunPanicDemo(ctx context.Context, location string) (dataType.Alert, error) {
	origin := s.Nodes[len(s.Nodes)-1]
	responder := s.Nodes[0]
	m := origin.SendPanic(location)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, a := range responder.GetActiveAlerts() {
			if a.Message.ID == m.ID {
				return a, nil
			}
		}
		select {
		case <-ctx.Done():
			return dataType.Alert{}, fmt.Errorf("alert %s did not reach %s: %w", m.ID, responder.Name(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Report returns one line of statistics per device.
func (s *Simulation) Report() []string {
	lines := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		st := n.GetStatistics()
		lines = append(lines, fmt.Sprintf("%-16s messages=%d panics=%d active=%d peers=%d",
			n.Name(), st.TotalMessages, st.TotalPanics, st.ActiveAlerts, st.ReachablePeers))
	}
	return lines
}
