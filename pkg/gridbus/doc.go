// Package gridbus is the message bus shared by the display controller and the
// turtle agents.
//
// # Overview
//
// The bus stands in for the wireless modem network of the original setup:
// integer channels carry tagged JSON envelopes, anyone may transmit on any
// channel, and a receiver only sees traffic on the channels it opened. There
// are no acknowledgements, no ordering guarantees and no sequence numbers.
// Protocols built on top are state based and idempotent: a lost message is
// repaired by the next one.
//
// # Channels
//
// The channel space is split into four disjoint ranges:
//
//	Reply        10000             agents -> controller answers
//	Error        10001             agents -> controller fault reports
//	ControlBase  11000 + cx + cy*51 per character cell
//	All          15000             controller -> every agent
//
// CellChannel computes the per-cell channel. Cell columns at or beyond
// RowWidth alias into the next row's channels; this caps a display at 51
// character columns.
//
// # Peer directory
//
// Each agent publishes its resolved position (or "Unknown") under its agent
// id so that neighbours can poll it during position discovery.
//
// # Redis schema
//
// Pub/Sub channels: turtlegrid:{instance}:channel:{n}
// Agent records:    turtlegrid:{instance}:agent:{agent_id}  (hash: label, x, y, updated_at_ms)
// Agent index:      turtlegrid:{instance}:agents            (set of agent ids)
//
// All keys and channels are namespaced by instance so several displays can
// share one Redis server.
package gridbus
