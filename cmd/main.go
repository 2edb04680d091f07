package main

import (
	"github.com/corray333/backend-labs/payment/internal/app"
	"github.com/corray333/backend-labs/payment/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
