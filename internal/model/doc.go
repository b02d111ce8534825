// Package model defines the domain types and value objects for the
// espbridge CLI.
//
// This package contains pure data structures with no external dependencies.
// Serial port descriptors and process views are snapshots of OS state taken
// at the moment they were read; nothing here is persisted except the
// BridgeRecord, which the state package writes to disk.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
