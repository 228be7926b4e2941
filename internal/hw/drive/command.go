package drive

import "strconv"

// Command is one entry of the drive's ASCII command set. The set is closed:
// only the types in this file implement it, and each knows its own token.
type Command interface {
	// Token returns the wire token without address prefix or newline.
	Token() string
	isCommand()
}

type (
	// Enable powers the drive (EN).
	Enable struct{}
	// Disable releases the drive (DI).
	Disable struct{}
	// Velocity runs at RPM, signed; 0 stops (V).
	Velocity struct{ RPM int }
	// MaxSpeed sets the speed limit in rpm (SP).
	MaxSpeed struct{ RPM int }
	// MaxAcceleration sets the acceleration limit (AC).
	MaxAcceleration struct{ Acc int }
	// MaxDeceleration sets the deceleration limit (DEC).
	MaxDeceleration struct{ Dec int }
	// Move executes the loaded target (M).
	Move struct{}
	// LoadRelative loads a target relative to the current position (LR).
	LoadRelative struct{ Steps int }
	// LoadAbsolute loads an absolute target (LA).
	LoadAbsolute struct{ Pos int }
	// Home zeroes the current position (HO).
	Home struct{}
	// HomeAt redefines the current position as Pos (HO<pos>).
	HomeAt struct{ Pos int }
	// GetPosition queries the actual position (POS).
	GetPosition struct{}
	// StartProgram opens a sequence program (PROGSEQ).
	StartProgram struct{}
	// EndProgram closes a sequence program (END).
	EndProgram struct{}
	// Delay pauses a program for Centiseconds hundredths of a second (DELAY).
	Delay struct{ Centiseconds int }
	// RunProgram runs the stored program (ENPROG, trailing space included).
	RunProgram struct{}
)

func (Enable) Token() string            { return "EN" }
func (Disable) Token() string           { return "DI" }
func (c Velocity) Token() string        { return "V" + strconv.Itoa(c.RPM) }
func (c MaxSpeed) Token() string        { return "SP" + strconv.Itoa(c.RPM) }
func (c MaxAcceleration) Token() string { return "AC" + strconv.Itoa(c.Acc) }
func (c MaxDeceleration) Token() string { return "DEC" + strconv.Itoa(c.Dec) }
func (Move) Token() string              { return "M" }
func (c LoadRelative) Token() string    { return "LR" + strconv.Itoa(c.Steps) }
func (c LoadAbsolute) Token() string    { return "LA" + strconv.Itoa(c.Pos) }
func (Home) Token() string              { return "HO" }
func (c HomeAt) Token() string          { return "HO" + strconv.Itoa(c.Pos) }
func (GetPosition) Token() string       { return "POS" }
func (StartProgram) Token() string      { return "PROGSEQ" }
func (EndProgram) Token() string        { return "END" }
func (c Delay) Token() string           { return "DELAY" + strconv.Itoa(c.Centiseconds) }
func (RunProgram) Token() string        { return "ENPROG " }

func (Enable) isCommand()          {}
func (Disable) isCommand()         {}
func (Velocity) isCommand()        {}
func (MaxSpeed) isCommand()        {}
func (MaxAcceleration) isCommand() {}
func (MaxDeceleration) isCommand() {}
func (Move) isCommand()            {}
func (LoadRelative) isCommand()    {}
func (LoadAbsolute) isCommand()    {}
func (Home) isCommand()            {}
func (HomeAt) isCommand()          {}
func (GetPosition) isCommand()     {}
func (StartProgram) isCommand()    {}
func (EndProgram) isCommand()      {}
func (Delay) isCommand()           {}
func (RunProgram) isCommand()      {}

// DelaySeconds converts seconds to a Delay, truncating to whole hundredths.
func DelaySeconds(seconds float64) Delay {
	return Delay{Centiseconds: int(seconds * 100)}
}
