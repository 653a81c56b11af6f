// Package memory provides in-process implementations of the service ports.
package memory
