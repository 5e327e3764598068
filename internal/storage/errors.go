package storage

import "errors"

// ErrNotFound wird von allen Lookups zurückgegeben, deren Ziel nicht (mehr)
// existiert. Die HTTP-Schicht mappt genau diesen Fehler auf 404; alle
// anderen Storage-Fehler sind 500er.
var ErrNotFound = errors.New("not found")
