package heaputils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is returned when the heap region cannot be extended far enough to satisfy a request
var OutOfMemoryError error = errors.New("out of memory")
