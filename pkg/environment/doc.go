/*
Package environment composes the runtime environment handed to the external converter.

The converter is a compiled program that resolves its native libraries through a
search-path variable (LD_LIBRARY_PATH, DYLD_LIBRARY_PATH or PATH, depending on the
platform). Resolution is first-match-wins, so the Builder prepends, in a fixed priority
order, the session workspace followed by every dependency root that exists on disk.

The Builder never touches the host process environment. It returns a new
domain.Environment that is consumed by exactly one execution.
*/
package environment
