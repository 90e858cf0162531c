// Package plan resolves subscription plan tags to their concurrent-device policy.
//
// # Policies
//
// A [Resolver] holds a static table of plan tag → maximum concurrent devices. Any tag that
// is not in the table resolves to the unmanaged variant ([Policy.Managed] reports false):
// no device limit is enforced and no session bookkeeping is expected for it.
//
// Adding a tier is a table entry, never a new branch in calling code.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import authcore or any session store.
package plan
