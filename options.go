package olevba

import (
	"github.com/sirupsen/logrus"

	"www.velocidex.com/golang/olevba/scanner"
)

const (
	DEFAULT_MAX_DEPTH                 = 5
	DEFAULT_MAX_ACTIVEMIME_CANDIDATES = 1024
)

// Options control a parser and every nested parser it creates.
type Options struct {
	// Diagnostics sink. Nil means NewLogger().
	Logger logrus.FieldLogger

	// Nesting limit for containers embedded in containers.
	MaxDepth int

	// Upper bound on zlib attempts during the ActiveMime byte scan.
	MaxActiveMimeCandidates int

	// Keyword tables used by Analyze. Nil means scanner.DefaultRules().
	Rules *scanner.Rules
}

func DefaultOptions() *Options {
	return &Options{
		Logger:                  NewLogger(),
		MaxDepth:                DEFAULT_MAX_DEPTH,
		MaxActiveMimeCandidates: DEFAULT_MAX_ACTIVEMIME_CANDIDATES,
		Rules:                   scanner.DefaultRules(),
	}
}

// normalize fills the zero fields so components can rely on them.
func (self *Options) normalize() *Options {
	result := *self
	result.Logger = getLogger(result.Logger)
	if result.MaxDepth <= 0 {
		result.MaxDepth = DEFAULT_MAX_DEPTH
	}
	if result.MaxActiveMimeCandidates <= 0 {
		result.MaxActiveMimeCandidates = DEFAULT_MAX_ACTIVEMIME_CANDIDATES
	}
	if result.Rules == nil {
		result.Rules = scanner.DefaultRules()
	}
	return &result
}
