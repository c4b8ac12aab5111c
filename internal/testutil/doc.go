// Package testutil holds fixtures shared by package tests: a throwaway
// namespace store and a small, fully populated round expressed as changes.
package testutil
