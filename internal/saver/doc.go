// Package saver writes downloaded market data to its output target: CSV,
// JSON or parquet files on disk, or a PostgreSQL table. The target is chosen
// by configuration; callers only see the Saver interface.
package saver
