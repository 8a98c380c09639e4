package domain

// DoorSignal is the plain-text body the door controller understands.
type DoorSignal string

const (
	SignalOpen   DoorSignal = "1"
	SignalClosed DoorSignal = "0"
)
