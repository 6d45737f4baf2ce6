// Package validation holds the field checks shared by rule validation and
// the Config types of the stat, flow and limiter packages. Every check
// returns a *errors.ValidationError naming the module and field.
package validation
