// Package scanner discovers ERC-4626 vault contracts on EVM chains. It walks
// a block range in chunks collecting the addresses that emitted deposit,
// withdraw, or transfer events, probes each candidate against the standard's
// minimum read surface, and emits a JSON report of the confirmed vaults with
// derived metrics such as share price and human-scaled totals.
package scanner
