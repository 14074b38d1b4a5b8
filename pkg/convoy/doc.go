// Package convoy is a turn-based dialogue orchestration engine for
// conversational sales assistants.
//
// A conversation is a thread of turns. Each inbound message is
// classified into an intent, routed through a total phase × intent
// transition table, and handled by node handlers that produce replies,
// state updates and side-effect descriptors. After every turn the
// conversation state is compacted and checkpointed; a thread can always
// be resumed from its latest checkpoint.
//
// Node execution runs under a resilience layer: per-class circuit
// breakers, retry with exponential backoff for idempotent nodes, hard
// per-node timeouts and panic recovery. Nodes with non-repeatable side
// effects are never retried and the order-submission node additionally
// sits behind a human approval gate: the turn suspends, an operator
// decides, and Resume continues execution exactly once per approval.
//
// Basic usage:
//
//	registry, _ := convoy.DefaultRegistry()
//	engine, _ := convoy.NewEngine(registry, checkpoint.NewMemoryStore())
//
//	ctx := convoy.NewContext(context.Background(),
//		convoy.WithThreadID("thread-42"))
//	result, err := engine.ProcessTurn(ctx, convoy.TurnRequest{
//		ThreadID: "thread-42",
//		Text:     "Hi, I'm looking for a jacket",
//	})
//
// Subpackages provide the supporting layers: checkpoint (durable
// snapshots), approval (human-in-the-loop records), resilience (retry,
// breakers, error classification), effect (side-effect dispatch),
// config and observability.
package convoy
