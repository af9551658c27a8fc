package redis

import "fmt"

// ShelfStateKey returns the key for the latest state of one shelf (hash)
// Pattern: shelf:state:{shelf}
func ShelfStateKey(shelf int) string {
	return fmt.Sprintf("shelf:state:%d", shelf)
}
