package gridbus

// Well-known channels.
const (
	ReplyChannel = 10000
	ErrorChannel = 10001
	ControlBase  = 11000
	AllChannel   = 15000

	// RowWidth is the number of cell channels reserved per cell row.
	RowWidth = 51
)

// CellChannel returns the control channel for the zero-indexed character
// cell (cx, cy). cx values of RowWidth or more alias into the next row.
func CellChannel(cx, cy int) int {
	return ControlBase + cx + cy*RowWidth
}
