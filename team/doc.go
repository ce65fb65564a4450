// Package team implements the team context broker and team membership.
//
// A team context is a key/value map shared by the members of one team. It is
// created on first access and destroyed by Teardown. Two brokers are provided:
//
//   - InMemoryBroker: process-local, one lock per key so writers of different
//     keys never contend
//   - RedisBroker: one Redis hash per team, optimistic WATCH/MULTI updates
//
// Both satisfy core.ContextBroker. Values written to a key are observed whole:
// a reader sees exactly one writer's value, never a mix.
package team
