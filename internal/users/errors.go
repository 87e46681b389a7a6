package users

import "fmt"

// PersistenceError reports a failure to save or load the user state file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("users: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Code identifies the error class in logs.
func (e *PersistenceError) Code() string { return "persistence_" + e.Op }
