// Package validation provides common validation utilities for configuration
// parameters across cardflow components.
//
// Constructors and the configuration loader use these helpers so that every
// rejected value is reported as an errors.ValidationError naming the module
// and field, with a hint on how to fix it.
package validation
