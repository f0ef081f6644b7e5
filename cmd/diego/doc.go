// Package diego provides the command-line interface for diego. It wires the
// build orchestrator (build, plan, clean, history) and the batch scanner
// (scan, db) to flags, config files and the environment.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/varalys/diego/cmd/diego"
//	func main() { diego.Execute() }
package diego
