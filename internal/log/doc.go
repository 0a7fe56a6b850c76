/*
Package log wraps zerolog with itemstored's conventions: a package-global
Logger initialized once via Init, and WithComponent/WithConnectionID/
WithResourceID/WithCollectionID helpers that return a child logger with
the relevant field already attached.

JSON output is used in production; console output (human-readable, with
timestamps) is used when JSONOutput is false, e.g. during local
development.
*/
package log
