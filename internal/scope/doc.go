// Package scope decides whether glob-pattern claims on the project tree
// collide, and whether a delegated task's scope stays inside its parent's.
//
// Claims are owned by tasks. Two patterns overlap when they are identical or
// when either one, used as a matcher, accepts the other's text. This is a
// conservative approximation of glob intersection: "src/**" and "src/a.go"
// overlap, "src/*.go" and "src/**/*.go" overlap, "src/*.go" and "docs/**"
// do not.
//
// # Conflict policy
//
// A requested path conflicts with an existing claim when the two overlap and
// the existing claim is exclusive. Claims owned by the requesting task and
// by its parent task are ignored, so a delegated child can work inside the
// area its parent holds. With [WithSymmetricExclusivity], an exclusive
// request also conflicts with overlapping shared claims.
//
// # Atomicity
//
// [Coordinator.Evaluate] checks every requested path before granting any of
// them. A single conflict rejects the whole request.
//
// Matching uses github.com/bmatcuk/doublestar/v4, so "**" spans directories.
package scope
