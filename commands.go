package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pckerneis/micro/patch"
)

type command struct {
	name  string
	help  string
	run   func(*session, []string) error
	arity int // -n means len(args) must be >= n
}

// Assigned in init so helpCommand may range over the table without
// creating an initialization cycle.
var commands []command

func init() {
	commands = []command{
		{"load", "load <file>: apply a patch file as the live graph", loadCommand, 1},
		{"check", "check <file>: parse a patch file and show diagnostics without applying it", checkCommand, 1},
		{"play", "play: start the transport", playCommand, 0},
		{"stop", "stop: halt the transport and silence all voices", stopCommand, 0},
		{"bpm", "bpm <tempo>: set the tempo in beats per minute", bpmCommand, 1},
		{"set", "set <node> <param> <value>: adjust a parameter on a live node", setCommand, -3},
		{"routes", "routes: show nodes, routes and connections", routesCommand, 0},
		{"patterns", "patterns: show the patterns of the live graph", patternsCommand, 0},
		{"errors", "errors: show diagnostics of the live graph", errorsCommand, 0},
		{"watch", "watch <file>: apply the file now and whenever it changes", watchCommand, 1},
		{"unwatch", "unwatch <file>: stop watching the file", unwatchCommand, 1},
		{"help", "help: list commands", helpCommand, 0},
		{"quit", "quit: exit", quitCommand, 0},
	}
}

func loadCommand(sess *session, args []string) error {
	return sess.load(args[0])
}

func checkCommand(sess *session, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	renderErrors(os.Stdout, sess.engine.Parse(string(data)).Errors)
	return nil
}

func playCommand(sess *session, args []string) error {
	sess.engine.Play()
	return nil
}

func stopCommand(sess *session, args []string) error {
	sess.engine.Stop()
	return nil
}

func bpmCommand(sess *session, args []string) error {
	bpm, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid tempo: %s", args[0])
	}
	return sess.engine.SetBPM(bpm)
}

// Values may span several words, so paths with spaces work unquoted.
func setCommand(sess *session, args []string) error {
	return sess.engine.SetParam(args[0], args[1], parseValue(strings.Join(args[2:], " ")))
}

func routesCommand(sess *session, args []string) error {
	renderRoutes(os.Stdout, sess.engine.Graph())
	return nil
}

func patternsCommand(sess *session, args []string) error {
	renderPatterns(os.Stdout, sess.engine.Patterns())
	return nil
}

func errorsCommand(sess *session, args []string) error {
	renderErrors(os.Stdout, sess.engine.Errors())
	return nil
}

func watchCommand(sess *session, args []string) error {
	return sess.watch(args[0])
}

func unwatchCommand(sess *session, args []string) error {
	return sess.unwatch(args[0])
}

func helpCommand(sess *session, args []string) error {
	for _, cmd := range commands {
		fmt.Println(cmd.help)
	}
	return nil
}

func quitCommand(sess *session, args []string) error {
	return errQuit
}

// parseValue reads a parameter value the way patch files spell them: a
// number, a dB amount, a boolean, or a string.
func parseValue(s string) patch.Value {
	if v, ok := strings.CutSuffix(s, "dB"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return patch.Decibel(f)
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return patch.Number(f)
	}
	switch s {
	case "true":
		return patch.Bool(true)
	case "false":
		return patch.Bool(false)
	}
	return patch.String(strings.Trim(s, `"`))
}
