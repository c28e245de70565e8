// Package storage keeps operational history (finished join attempts) in a
// local SQLite file. It is optional: with driver "none" the bot runs fully
// in memory, and the schedule itself is never persisted either way.
package storage
