package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	chassis "github.com/ai8future/chassis-go/v5"

	"crewgen/pkg/cli"
)

func main() {
	chassis.RequireMajor(5)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res := cli.Scaffold(ctx, os.Args[1:], cli.Options{})
	stop()
	if res.Err != nil && res.ExitCode == cli.ExitInterrupted {
		fmt.Fprintf(os.Stderr, "\n%v\n", res.Err)
	}
	os.Exit(res.ExitCode)
}
