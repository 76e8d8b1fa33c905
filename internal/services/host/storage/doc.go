// Package storage defines the persistence contracts of the host.
package storage
