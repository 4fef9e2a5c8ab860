package main

import (
	"context"
	stdlog "log"

	"go.pilab.hu/oauth/cmd/oauthctl/cmd"
	"go.pilab.hu/oauth/tracing"
)

func main() {
	tp, err := tracing.InitTracerProvider("oauthctl")
	if err != nil {
		stdlog.Fatalf("Failed to initialize TracerProvider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			stdlog.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
