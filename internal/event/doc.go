// Package event defines the events a turn emits and their wire form.
package event
