package main

import "github.com/encodeous/tpwsn/cmd"

func main() {
	cmd.Execute()
}
