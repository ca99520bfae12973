// Package events derives semantic device events from two registry snapshots.
package events
