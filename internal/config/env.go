package config

import (
	"github.com/JaimeStill/cappa/pkg/logging"
	"github.com/JaimeStill/cappa/pkg/middleware"
)

var loggingEnv = &logging.Env{
	Level:  "LOGGING_LEVEL",
	Format: "LOGGING_FORMAT",
	Source: "LOGGING_SOURCE",
}

var corsEnv = &middleware.CORSEnv{
	Enabled:          "CORS_ENABLED",
	Origins:          "CORS_ORIGINS",
	AllowedMethods:   "CORS_ALLOWED_METHODS",
	AllowedHeaders:   "CORS_ALLOWED_HEADERS",
	AllowCredentials: "CORS_ALLOW_CREDENTIALS",
	MaxAge:           "CORS_MAX_AGE",
}

var compressEnv = &middleware.CompressEnv{
	Enabled: "COMPRESSION_ENABLED",
	MinSize: "COMPRESSION_MIN_SIZE",
}
