package main

import (
	"github.com/emrgen/docflow/internal/config"
	"github.com/emrgen/docflow/internal/server"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()
	logrus.SetLevel(logrus.DebugLevel)

	err := server.Start(cfg)
	if err != nil {
		logrus.Error(err)
	}
}
