package main

import (
	"os"

	"stackbot-deployment/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.WithModule("main").WithError(err).Error("stackbot exited with error")
		os.Exit(1)
	}
}
