// Package lib holds modules that do not fit strictly into other layers,
// such as the CLI output helpers in lib/utils.
package lib
