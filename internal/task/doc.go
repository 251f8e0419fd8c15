// Package task polls an external controller for task-completion state until
// a terminal condition is observed.
package task
