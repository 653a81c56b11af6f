/*
Package domain contains the core domain models of the conversion service.

It defines the entities that flow through one conversion request, from the moment an
upload arrives until its workspace is torn down. This package is kept pure and free of
I/O, following Hexagonal Architecture principles.

# Key Entities

  - Session: One request's isolated execution context (workspace, input, declared output dir).
  - Environment: An immutable set of environment variables handed to a single execution.
  - Command: Everything the executor needs to launch the external converter once.
  - Result: The outcome of one execution (exit code, captured streams, duration, outputs).
  - ConversionError: A failure annotated with the terminal State the request ended in.
*/
package domain
