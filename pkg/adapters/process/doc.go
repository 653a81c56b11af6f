/*
Package process runs the external converter as a supervised child process.

The Runner never changes the host process's working directory or environment: both are
passed explicitly to the spawn call. Standard output and standard error are captured in
full and returned verbatim. On timeout or cancellation the whole process group is
killed, so helper processes started by the converter do not outlive the session.
*/
package process
