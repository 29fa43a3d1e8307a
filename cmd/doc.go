// Package cmd implements the command-line interface for cKV. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Command for starting and configuring the cKV server
//   - document: Commands for document store operations (put, get, search, history, transactions, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Flags can also be set via environment variables (CKV_<FLAG>) or a .env file.
// See ckv -help for a list of all commands.
package cmd
