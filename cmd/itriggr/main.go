package main

import (
	"github.com/Seci84/ITriggr/cmd/handlers"
	"github.com/Seci84/ITriggr/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
