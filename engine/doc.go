// Package engine implements the backend adapter layer of agentbridge.
//
// An Adapter wraps a core.Reasoner (the swapped-in autonomous-agent backend)
// behind the fixed call surface the orchestration layer expects:
//
//	Initialize(cfg) → Run(ctx, input) → Reset()
//
// # Workflow
//
// Every run is a small state machine tracked by core.Workflow:
//
//	pending → plan → execute → reflect → done
//	any phase → failed
//
// The plan phase asks the reasoner for a core.Plan. The execute phase runs each
// step: steps naming a tool go through the adapter's tool.Bridge, all other
// steps back to the reasoner. Step outputs are synthesized into one answer and
// the optional reflect phase reviews it. A failure in any phase surfaces as a
// *core.WorkflowError carrying the failed phase; with Config.Degraded the
// adapter records a reply prefixed "[degraded]" instead.
//
// # Reasoners
//
//   - SimulatedReasoner: offline and deterministic, recognises inline tool
//     directives such as "double(21)" (see ParseDirectives)
//   - ModelReasoner: drives a model.Model and expects a JSON plan
//
// # Registry
//
// Engine keeps initialized adapters by agent name. An optional semaphore caps
// in-flight runs; without it runs for distinct agents never wait on each
// other.
//
// # Hooks
//
// A CallbackManager receives before/after events for runs, phases and tool
// steps. A failing before-callback aborts the run in the active phase.
//
// # Observability
//
// Runs and phases emit OpenTelemetry spans ("adapter.run", "adapter.plan",
// ...), structured log lines and, when a metrics.Collector is configured,
// Prometheus metrics.
package engine
