package database

import "embed"

// MigrationsFS содержит SQL-миграции схемы форков.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsPath - каталог внутри MigrationsFS.
const MigrationsPath = "migrations"
