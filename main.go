package main

import (
	"fmt"
	"os"

	fsmrund "github.com/webitel/fsmrun/cmd/fsmrund"
)

func main() {
	if err := fsmrund.Run(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
