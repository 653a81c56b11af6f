/*
Package ports defines the driven ports (interfaces) for the conversion service.

These interfaces decouple the orchestration in the root package from concrete
implementations, so the same pipeline runs against a local process or a fake, and
tracks live sessions in memory or in Redis.

# Key Interfaces

  - Executor: Launches the external converter for one session and classifies the outcome.
  - SessionRegistry: Records which workspaces are owned by in-flight sessions, so a sweep never removes them.
  - DistributedLocker: Provides distributed locking so only one replica sweeps a shared workspace root at a time.
*/
package ports
