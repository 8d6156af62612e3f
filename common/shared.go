package common

import (
	"github.com/sirupsen/logrus"
	"runtime"
)

var (
	Logger *logrus.Logger

	IsRunningOnWin = runtime.GOOS == "windows"

	VersionStr string
)

const (
	ProgramRev = 1

	// IOC lists are capped per kind so adversarial content cannot grow
	// output without bound. This is a safety property, not an optimization.
	MaxIOCPerKind = 15

	// a single signature match never reports more than this many fragments
	MaxMatchedFragments = 5
)
