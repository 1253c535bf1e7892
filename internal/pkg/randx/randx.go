/*
Package randx provides identifier generation for the roster.

It allocates locally unique provisional client ids on the client side and
UUID v4 server ids on the registrar side.
*/
package randx

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// ClientIDPrefix is the fixed tag every provisional client id starts with.
const ClientIDPrefix = "c"

// CidAllocator hands out provisional client ids of the form "c0", "c1", ...
// Ids are never reused for the lifetime of the allocator. The zero value is ready to use.
type CidAllocator struct {
	serial atomic.Uint64
}

// Next returns the next provisional client id.
func (a *CidAllocator) Next() string {
	n := a.serial.Add(1) - 1
	return ClientIDPrefix + strconv.FormatUint(n, 10)
}

// IsProvisionalID reports whether id has the shape of an allocated provisional client id.
func IsProvisionalID(id string) bool {
	digits, ok := strings.CutPrefix(id, ClientIDPrefix)
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 10, 64)
	return err == nil
}

// ServerID generates a standard UUID v4 string to serve as the authoritative id of a registered person.
func ServerID() string {
	return uuid.New().String()
}
