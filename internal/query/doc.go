// Package query provides quill's deferred query plans and predicate algebra.
//
// A Plan is an immutable description of a not-yet-executed query: source
// relation, filter predicate, ordering, window (offset/limit), eager-load
// requests and reduction requests. Every transformation method returns a
// new Plan; no plan mutates another, so plans are safe to share across
// goroutines without synchronization.
//
// ARCHITECTURE:
//
// The query package sits between callers and the execution engine:
//
//	[caller chaining] → [query.Plan] → [engine.Execute]
//	                                 → [querysql compile → store]
//
// Building, transforming or printing a Plan never touches storage; only
// the engine's Execute, ExecuteOne and Aggregate do.
//
// VALIDATION:
//
// Plans validate eagerly against the schema registry as clauses are added.
// Referencing an undeclared field or relationship, comparing incompatible
// semantic types, or forcing a joined load onto a to-many relationship
// records a typed PlanError on the returned plan, reported by Err. The
// engine rejects an errored plan before any storage call, so validation
// errors never reach storage.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// types in this package (Cmp, And, Or, Not) implement it, which enables
// exhaustive type switches in backend compilers.
package query
