package grid

// GetGridCoords maps a linear cell index to column and row in a grid that is
// cols cells wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}
