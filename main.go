package main

import (
	"fmt"

	"github.com/webitel/actor-node/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
