/*
Package queue defines the tasks distributed among grove workers
as well as an interface for a Queue to manage them and track
their outcomes.

It also provides an in-memory implementation of the Queue interface
*/
package queue
