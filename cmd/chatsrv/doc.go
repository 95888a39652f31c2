// Package `chatsrv` implements server application for broadcast chat over TCP.
//
// Every line received from one client is relayed to all other connected clients
// prefixed with the sender address. Optionally the same chat is served over WebSocket.
//
// To compile chat server locally, run from package directory:
//
//	go install .
//
// Or quickly launch server with command:
//
//	go run . -ip 127.0.0.1 -port 9999
//
// Every flag may be set with environment variable as well, for example CHATSRV_PORT=9999.
// Explicit flags win over environment.
package main
