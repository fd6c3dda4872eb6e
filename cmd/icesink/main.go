package main

import "github.com/zegnqin/seatunnel/cmd"

func main() {
	cmd.Execute()
}
