// Package core defines the contracts shared by every layer of agentbridge:
//
//   - Agent identities and conversation turns (append-only, immutable records)
//   - The plan/execute/reflect workflow state machine (Phase, Workflow)
//   - Plans and steps produced by a backend reasoner
//   - The Reasoner contract an external agent engine must satisfy
//   - Stores: TurnStore for per-agent history, ContextBroker for team context
//   - The error taxonomy surfaced to orchestration call sites
//
// The package holds no implementations beyond small value helpers so that
// backends, stores and facades can be swapped independently.
package core
