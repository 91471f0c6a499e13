// Package testutil contains builders that reduce boilerplate when tests need
// workflow states in a particular shape. They are not intended for
// production usage.
package testutil
