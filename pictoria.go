package main

import (
	"github.com/pictoria-cloud/pictoria/cmd"
	"github.com/pictoria-cloud/pictoria/pkg/env"
	"github.com/pictoria-cloud/pictoria/pkg/log"
)

func main() {
	if err := env.Process(); err != nil {
		log.Fatal("environment failure", "error", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal("pictoria failure", "error", err)
	}
}
