package main

//go:generate swag init

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/satheeshds/invoicedesk/cmd"
)

// @title           Invoice Desk API
// @version         1.0.0
// @description     API for uploading invoices, extracting their fields and reviewing the resulting documents.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

func main() {
	// Load .env when present; real environment variables take precedence
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cmd.Execute()
}
