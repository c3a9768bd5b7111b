//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test runs the full test suite.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Run works the tracker backlog with the configured worker pool.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "run")
}

// Reconcile repairs tracker state against the papers and parsed directories,
// writing the run report under reports/.
func Reconcile() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "reconcile", "--report", "reports/reconcile.yaml")
}

// TrackerStats prints aggregate tracker counts.
func TrackerStats() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "stats")
}
