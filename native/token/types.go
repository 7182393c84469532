package token

import (
	"fmt"
	"strings"
)

// Metadata describes a fungible token tracked by the ledger. The address is
// the 20-byte identifier offers and pools reference; balances always follow
// the 18-decimal wei convention regardless of display decimals.
type Metadata struct {
	Address  [20]byte
	Name     string
	Symbol   string
	Decimals uint8
	Mintable bool
}

// Clone returns a copy callers can mutate freely.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// SanitizeMetadata normalises and validates a token definition prior to
// registration.
func SanitizeMetadata(m *Metadata) (*Metadata, error) {
	if m == nil {
		return nil, fmt.Errorf("token: nil metadata")
	}
	clone := m.Clone()
	clone.Name = strings.TrimSpace(clone.Name)
	clone.Symbol = strings.ToUpper(strings.TrimSpace(clone.Symbol))
	if clone.Symbol == "" {
		return nil, fmt.Errorf("token: symbol required")
	}
	if clone.Address == ([20]byte{}) {
		return nil, fmt.Errorf("token: zero address")
	}
	return clone, nil
}
