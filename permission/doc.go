// Package permission provides a 64-bit permission registry, role grants and checks.
//
// # Grants
//
// A role holds a [Grant], a closed variant: [All] for super roles or [Subset] carrying
// an explicit [Mask64]. Checks go through [Registry.Allowed], which rejects unregistered
// permission names for every grant so typos fail loudly instead of being waved
// through by [All].
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import authcore, jwt, or session.
package permission
