package icebergerr

import "fmt"

// WrapTable wraps err with the operation and table identifier so failures are
// self-describing in logs.
func WrapTable(err error, op, table string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s[table=%s]: %w", op, table, err)
}
