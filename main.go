package main

import "coursebook/commands"

func main() {
	commands.Execute()
}
