// Package worker contains the generic stage loop. A Runner claims one job at
// a time for its stage, invokes the stage handler while a heartbeat goroutine
// keeps the claim fresh, and records the outcome as a transition to the next
// pipeline stage, a terminal done, or a failure. Pool fans runners out across
// every configured stage for the all-in-one run command.
package worker
