// Package utils holds small test and conversion helpers shared across packages.
package utils

// Ptr returns a pointer to v. Convenient for optional struct fields.
func Ptr[T any](v T) *T {
	return &v
}
