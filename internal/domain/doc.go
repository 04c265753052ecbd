// Package domain contains the core business concepts for the print broker.
// Keep this package free of transport (HTTP) and infrastructure (SQL/Redis/filesystem) concerns.
package domain
