// Package web3 houses blockchain connectivity utilities for the assistant:
// the chain client abstraction used for balance lookups and log retrieval,
// and multi-chain configuration helpers. It lets the engine and the vault
// scanner interact with supported EVM networks through one uniform surface.
package web3
