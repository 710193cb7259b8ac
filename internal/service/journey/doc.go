// Package journey implements the session record service.
//
// Closed sessions are persisted here and become immutable analytic records;
// the analytics engines (dropoff, comparison) consume read-only snapshots
// through this service. It depends on the Repository interface defined in
// this package and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package journey
