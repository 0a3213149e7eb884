package main

import "github.com/jnwerner/vouch/cmd"

func main() {
	cmd.Execute()
}
