// Package agent contains the core orchestrator responsible for driving a
// token swap through the intents settlement contract. It coordinates the
// lifecycle of a swap session, sequences balance and storage checks before
// any value moves, and enforces the point of no return around publication.
package agent
