//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// Not used at runtime. mockgen is invoked through go generate on contract/contract.go
// and must be tracked in go.mod for the mocks to be regenerated on a fresh checkout.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
