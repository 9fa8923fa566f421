//go:build tools
// +build tools

// Package tools pins mockgen so `go generate` resolves it from go.mod.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
