package main

import (
	"headlines/cmd/handlers"
	"headlines/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
