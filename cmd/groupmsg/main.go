package main

import "github.com/example/groupmsg/cmd"

func main() {
	cmd.Execute()
}
