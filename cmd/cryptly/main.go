// Package main provides the cryptly CLI for managing projects, secret
// versions and external repository sync.
package main

import "github.com/secretlify/cryptly/cmd/cryptly/commands"

func main() {
	commands.Execute(VERSION)
}
