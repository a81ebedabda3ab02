package main

import "github.com/krskas/slack-task-tracker/services/tracker/cli"

func main() {
	cli.Execute()
}
