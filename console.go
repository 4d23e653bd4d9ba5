package main

import (
	"bufio"
	"fmt"
	"io"
	"panic_mesh/internal/dataType"
	"panic_mesh/internal/server"
	"strings"
	"time"
)

const consoleHelp = `commands:
  panic [location]     send a panic alert
  send <text>          send a regular message
  log                  show received messages
  alerts               show active alerts
  ack <id>             acknowledge an alert
  stats                show network statistics
  peers                show reachable peers`

// runConsole is a minimal line-oriented front end for a running node.
func runConsole(in io.Reader, out io.Writer, node *server.Node) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(cmd) {
		case "panic":
			m := node.SendPanic(arg)
			fmt.Fprintf(out, "panic sent: %s\n", m.ID)
		case "send":
			m, err := node.SendMessage(arg, "")
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "message sent: %s\n", m.ID)
		case "log":
			for _, m := range node.GetMessageLog() {
				fmt.Fprintln(out, formatMessage(m))
			}
		case "alerts":
			for _, a := range node.GetActiveAlerts() {
				fmt.Fprintf(out, "%s %s\n", a.Message.ID, formatMessage(a.Message))
			}
		case "ack":
			a, err := node.AcknowledgeAlert(arg)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "acknowledged %s at %s\n", a.Message.ID, a.AcknowledgedAt.Format(time.Kitchen))
		case "stats":
			st := node.GetStatistics()
			fmt.Fprintf(out, "messages=%d panics=%d active=%d peers=%d seen=%d\n",
				st.TotalMessages, st.TotalPanics, st.ActiveAlerts, st.ReachablePeers, st.SeenEntries)
		case "peers":
			fmt.Fprintln(out, strings.Join(node.PeersToBroadcast(), ", "))
		default:
			fmt.Fprintln(out, consoleHelp)
		}
	}
}

func printEvents(out io.Writer, events <-chan server.Event) {
	for ev := range events {
		switch ev.Type {
		case server.EventMessage:
			fmt.Fprintln(out, formatMessage(ev.Message))
		case server.EventAlertChanged:
			state := "NEW ALERT"
			if ev.Alert.Acknowledged {
				state = "acknowledged"
			}
			fmt.Fprintf(out, "[%s] %s from %s\n", state, ev.Alert.Message.ID, ev.Alert.Message.Sender)
		}
	}
}

func formatMessage(m dataType.Message) string {
	prefix := ""
	if m.IsPanic {
		prefix = "!! "
	}
	loc := ""
	if m.Location != "" {
		loc = " @ " + m.Location
	}
	return fmt.Sprintf("%s[%s] %s: %s%s (hops=%d)", prefix, m.CreatedAt.Format(time.Kitchen), m.Sender, m.Content, loc, m.HopCount)
}
