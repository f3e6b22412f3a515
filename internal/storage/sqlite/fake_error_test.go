package sqlite

import "errors"

var errFake = errors.New("fake batch error")
