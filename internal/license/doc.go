// Package license implements the trial-window policy and the unlock
// flow for TaskDeck: a 30-day trial anchored to an installation-wide
// timestamp, and a durable per-username unlock ledger written when a
// valid unlock code is submitted.
//
// An unlock code is valid only on the calendar day embedded in it, but
// the ledger record it produces is permanent: gated requests afterward
// re-validate the stored code for self-consistency (identity and
// embedded date matching the record), not for freshness. One-time
// activation, permanent effect.
package license
