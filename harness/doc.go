// Package harness verifies the adapter layer end to end.
//
// Catalogue lists the built-in scenarios grouped into categories. A Harness
// runs them concurrently and condenses the outcome into a Report that can be
// written as JSON or YAML. TestInterface runs ad-hoc {agent, input,
// expected} cases against named adapters.
//
// Scenarios only use public APIs of the engine, agent, tool and team
// packages and run offline against the simulated backend unless a different
// reasoner factory is configured.
package harness
