// Package deps reports availability of the external binaries splice
// shells out to.
package deps
