// Package engine holds the per-player economy: taps, upgrade and card
// purchases, grants, energy regeneration and offline reconciliation.
//
// One Engine owns one player's progress and is the only thing that mutates it.
// Every operation runs under the engine's mutex, so concurrent callers (the
// regen ticker, WebSocket clients, reward timers) serialise on it.
package engine
