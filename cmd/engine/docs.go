package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           NRL Engine API
// @version         0.1.0
// @description     Read-only ops API over the NRL betting decision pipeline.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
