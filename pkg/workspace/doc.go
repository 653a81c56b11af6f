/*
Package workspace allocates, stages and tears down per-session working directories.

Every conversion runs inside its own directory under a shared root. The directory name is
the session ID; the Manager claims it with an exclusive mkdir, retrying with a fresh ID on
collision, so two sessions can never share a workspace. Support files are copied in with
their relative layout preserved, so the converter's relative lookups behave exactly as they
would in the asset directory.

Sessions are recorded in a ports.SessionRegistry while they own their directory. Sweep
removes every directory (and derived archive) under the root that no live session owns; it
is meant to run at startup to recover from crashes.
*/
package workspace
