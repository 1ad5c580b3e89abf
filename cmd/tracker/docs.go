package main

//go:generate swag init -g cmd/tracker/main.go -o docs

// @title IPO Tracker API
// @version 0.1.0
// @description NSE and BSE IPO discovery, reconciliation and enrichment.
// @host localhost:8080
// @BasePath /
// @schemes http
