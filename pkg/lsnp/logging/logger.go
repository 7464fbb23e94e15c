// Package logging provides the peer's leveled, colorized log sink.
//
// It plays the role the teacher's definition.DefaultLogger plays for
// go-mcast: a small wrapper the rest of the module depends on through an
// interface, with a default concrete implementation nobody is forced to
// use. Unlike the teacher's stdlib-log wrapper, ours is built on logrus
// and colorizes by message class (SEND/RECV/DROP) rather than by level,
// since on the wire nearly everything is either an Info or a Warn.
package logging

import (
	"io"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

var (
	sendPrefix = color.CyanString("SEND >")
	recvPrefix = color.MagentaString("RECV <")
	dropPrefix = color.YellowString("DROP !")
)

// Logger is the interface every component in this module logs through.
// Keeping it an interface (rather than a concrete *logrus.Logger) lets
// tests supply a silent or buffering implementation.
type Logger interface {
	Send(format string, args ...interface{})
	Recv(format string, args ...interface{})
	Drop(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	SetVerbose(bool)
}

// VerboseLogger is the default Logger. SEND/RECV/DROP lines are only
// emitted while verbose is on; INFO/WARN/ERROR always print, matching
// the split the original peer's VerboseLogger made between wire-noise
// and operator-relevant events.
type VerboseLogger struct {
	verbose bool
	out     *logrus.Logger
}

// New builds a VerboseLogger writing colorized lines to out (or a
// colorable wrapper of os.Stdout when out is nil).
func New(verbose bool, out io.Writer) *VerboseLogger {
	if out == nil {
		out = colorable.NewColorableStdout()
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
	})
	return &VerboseLogger{verbose: verbose, out: l}
}

func (v *VerboseLogger) SetVerbose(on bool) { v.verbose = on }

func (v *VerboseLogger) Send(format string, args ...interface{}) {
	if v.verbose {
		v.out.Infof(sendPrefix+" "+format, args...)
	}
}

func (v *VerboseLogger) Recv(format string, args ...interface{}) {
	if v.verbose {
		v.out.Infof(recvPrefix+" "+format, args...)
	}
}

func (v *VerboseLogger) Drop(format string, args ...interface{}) {
	if v.verbose {
		v.out.Warnf(dropPrefix+" "+format, args...)
	}
}

func (v *VerboseLogger) Infof(format string, args ...interface{})  { v.out.Infof(format, args...) }
func (v *VerboseLogger) Warnf(format string, args ...interface{})  { v.out.Warnf(format, args...) }
func (v *VerboseLogger) Errorf(format string, args ...interface{}) { v.out.Errorf(format, args...) }
func (v *VerboseLogger) Debugf(format string, args ...interface{}) {
	if v.verbose {
		v.out.Debugf(format, args...)
	}
}

// Discard is a Logger that drops everything; useful in unit tests that
// don't want verbose noise but still need something satisfying the
// interface.
type Discard struct{}

func (Discard) Send(string, ...interface{})    {}
func (Discard) Recv(string, ...interface{})    {}
func (Discard) Drop(string, ...interface{})    {}
func (Discard) Infof(string, ...interface{})   {}
func (Discard) Warnf(string, ...interface{})   {}
func (Discard) Errorf(string, ...interface{})  {}
func (Discard) Debugf(string, ...interface{})  {}
func (Discard) SetVerbose(bool)                {}

var _ Logger = (*VerboseLogger)(nil)
var _ Logger = Discard{}
