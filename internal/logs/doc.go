// Package logs reads back curewatch's own log file: the last lines of a
// past run, optionally narrowed to one run id or component, and a follow
// mode for long training passes.
package logs
