// Command dtls-log is a tool for viewing and analyzing protocol log files.
//
// Log files are written by dtls-client when run with --protocol-log.
//
// Usage:
//
//	dtls-log <command> [flags] <file.dlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only handshake messages
//	dtls-log view --layer handshake client.dlog
//
//	# View only outgoing events
//	dtls-log view --direction out client.dlog
//
//	# Keep one session and save it to a new file
//	dtls-log filter --conn-id 3f2a9c1e-0b7d-4c55-9a8e-61f0d2c4b7a9 -o session.dlog client.dlog
//
//	# Show statistics
//	dtls-log stats client.dlog
package main

import (
	"fmt"
	"os"

	"github.com/Marz6759/goldy/cmd/dtls-log/commands"
)

func main() {
	if err := commands.NewRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
