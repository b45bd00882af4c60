package main

import "github.com/Bikxs/skafu-core/cmd"

func main() {
	cmd.Execute()
}
