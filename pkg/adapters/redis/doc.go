/*
Package redis implements the session registry and distributed locker on Redis.

Use it when several replicas share one workspace root (for example over NFS): every
replica registers its in-flight sessions in a shared sorted set, and the startup sweep
takes a lock so that only one replica removes stale workspaces at a time.
*/
package redis
