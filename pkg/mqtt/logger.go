package mqtt

import (
	"fmt"
	"strings"

	paholog "github.com/eclipse/paho.golang/paho/log"
	"github.com/go-logr/logr"
)

// pahoLogger adapts a logr.Logger to the Println/Printf logger paho expects.
// Debug output goes to V(1); error output is logged as an error without a cause.
type pahoLogger struct {
	l      logr.Logger
	errors bool
}

var _ paholog.Logger = pahoLogger{}

func newPahoLoggers(l logr.Logger) (debug, errs pahoLogger) {
	return pahoLogger{l: l.V(1)}, pahoLogger{l: l, errors: true}
}

func (p pahoLogger) Println(v ...interface{}) {
	p.log(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.log(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (p pahoLogger) log(msg string) {
	if p.errors {
		p.l.Error(nil, msg)
		return
	}
	p.l.Info(msg)
}
