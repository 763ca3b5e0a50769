// Package config loads typed configuration structs from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for struct-tag parsing and
// github.com/joho/godotenv for optional .env files. Every package that needs
// settings declares its own struct with `env` tags and calls Load once at
// startup:
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Parsed values are cached per struct type, so repeated loads of the same
// type are cheap and always return the same values. Tests that change the
// environment between loads call Reset.
package config
