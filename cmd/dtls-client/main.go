// Command dtls-client opens a secure datagram session to a server, sends
// one request, prints the response and closes the session.
//
// Usage:
//
//	dtls-client -h <host> -p <port> -b <body> [-n <server name>] [flags]
//
// Examples:
//
//	# Send "ping" and accept the peer even if verification fails
//	dtls-client -h 192.0.2.10 -p 4433 -b ping
//
//	# Refuse peers that do not verify against an extra CA file
//	dtls-client -h 192.0.2.10 -p 4433 -b ping -n dtls.example.net \
//	    --auth-mode required --ca-file ca.pem
//
//	# Take defaults from a file and record the protocol events
//	dtls-client --config client.yaml -b ping --protocol-log client.dlog
package main

import (
	"os"

	"github.com/Marz6759/goldy/cmd/dtls-client/commands"
)

func main() {
	os.Exit(commands.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
