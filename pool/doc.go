// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable copy buffers for the relay hot path. Each relay direction borrows one
// buffer for the lifetime of its copy loop and returns it when the loop exits.
package pool
