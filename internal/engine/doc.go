// Package engine executes query plans against a storage collaborator and
// materializes the results into validated records.
//
// ARCHITECTURE: The engine is the only component that talks to storage.
// Plans stay inert until a terminal operation (All, Each, Count, Exists,
// ExecuteOne, Aggregate) forces them; the engine then compiles the plan,
// runs it, resolves eager loads, and hydrates records. A ResultSet caches
// its materialized rows, so forcing it twice costs one storage round trip.
//
// Eager loading has two strategies:
//
//   - Joined: to-one relationships fold into the root query as LEFT JOINs;
//     one round trip total.
//   - Batched: the engine collects parent identifiers from the root rows
//     and issues one follow-up query per relationship, chunked so no
//     single query carries more than query.MaxBatchIdentifiers ids.
//
// Either way a root query with eager loads costs a bounded number of
// round trips independent of the row count.
package engine
