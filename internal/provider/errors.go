package provider

import "fmt"

// StatusError is a non-200 response from a data source.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Body)
}

// ElementNotFoundError means the page loaded but the value's element was absent.
type ElementNotFoundError struct {
	URL      string
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s: element %q not found", e.URL, e.Selector)
}

// ParseError means the element was present but its text was not a number.
type ParseError struct {
	URL   string
	Field string
	Text  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s from %q: %v", e.URL, e.Field, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
