package logger

// Nop returns a logger that discards everything. Used by tests and as the
// default before a real logger is injected.
func Nop() Logger { return nop{} }

type nop struct{}

func (nop) WithField(string, any) Logger      { return nop{} }
func (nop) WithFields(map[string]any) Logger  { return nop{} }
func (nop) WithError(error) Logger            { return nop{} }
func (nop) Print(...any)                      {}
func (nop) Trace(...any)                      {}
func (nop) Debug(...any)                      {}
func (nop) Info(...any)                       {}
func (nop) Warn(...any)                       {}
func (nop) Error(...any)                      {}
func (nop) Fatal(...any)                      {}
func (nop) Panic(...any)                      {}
func (nop) Printf(string, ...any)             {}
func (nop) Tracef(string, ...any)             {}
func (nop) Debugf(string, ...any)             {}
func (nop) Infof(string, ...any)              {}
func (nop) Warnf(string, ...any)              {}
func (nop) Errorf(string, ...any)             {}
func (nop) Fatalf(string, ...any)             {}
func (nop) Panicf(string, ...any)             {}
func (nop) SetLevel(Level)                    {}
func (nop) GetLevel() Level                   { return Disabled }
