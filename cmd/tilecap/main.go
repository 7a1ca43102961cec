package main

import "github.com/bryanchriswhite/tilecap/cmd/tilecap/commands"

func main() {
	commands.Execute()
}
