// Package procexec runs external commands with a hard timeout and captures
// their stdout, stderr, and exit code.
//
// Every child is started in its own process group so a timeout or a
// cancelled context terminates the command together with anything it
// spawned. The package carries no business logic; callers decide what a
// non-zero exit means.
package procexec
