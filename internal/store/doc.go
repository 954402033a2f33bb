// Package store declares the persistence contract for the run ledger.
package store
