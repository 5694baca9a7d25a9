package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	a := newApp()
	if err := execute(context.Background(), a, newRootCmd(a)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
