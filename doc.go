// Package groupwarden provides rule-driven chat-group automation
// machinery: a small rule language, its evaluator and executor, and
// the event dispatcher that runs each group's rules.
//
// The language lives in package 'lang', evaluation in 'interp' and
// 'engine', event handling in 'dispatch', and the daemon in
// 'cmd/wardend'.
package groupwarden
