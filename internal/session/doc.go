// Package session
// Author: momentics <momentics@gmail.com>
//
// Registry of live relay connections. Each Session maps to one accepted client
// connection from accept until both of its sockets are closed. The registry is
// sharded for concurrent accept loops and supports cancelling every live
// session on shutdown.

package session
