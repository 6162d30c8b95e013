// Package database manages the PostgreSQL connection pool behind the
// downloader's postgres output target.
package database
