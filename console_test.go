package main

import (
	"bytes"
	"panic_mesh/internal/config"
	"panic_mesh/internal/server"
	"panic_mesh/internal/transport"
	"strings"
	"testing"
)

func TestRunConsole(t *testing.T) {
	cfg := config.DefaultMainConfig()
	cfg.NodeName = "Console"
	node, err := server.NewNode(&cfg, transport.NewMemoryNetwork().Join("Console"), nil)
	if err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader("send hello there\npanic Pier 9\nstats\nack missing\nwhat\n")
	var out bytes.Buffer
	runConsole(in, &out, node)

	got := out.String()
	for _, want := range []string{"message sent:", "panic sent:", "messages=2 panics=1 active=1", "alert not found", "commands:"} {
		if !strings.Contains(got, want) {
			t.Errorf("console output missing %q:\n%s", want, got)
		}
	}
	if alerts := node.GetActiveAlerts(); len(alerts) != 1 || alerts[0].Message.Location != "Pier 9" {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}
